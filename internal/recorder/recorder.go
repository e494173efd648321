// Package recorder turns bridge callbacks into session records and hands
// them to a storage backend off the tick path.
package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yl5006/sitl-gazebo/internal/actuation"
	"github.com/yl5006/sitl-gazebo/internal/bridge"
	"github.com/yl5006/sitl-gazebo/internal/dispatcher"
	"github.com/yl5006/sitl-gazebo/internal/influx"
	"github.com/yl5006/sitl-gazebo/internal/mavlink"
	"github.com/yl5006/sitl-gazebo/internal/noise"
	"github.com/yl5006/sitl-gazebo/internal/sensor"
	"github.com/yl5006/sitl-gazebo/internal/session"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

var (
	// ErrStarted is returned by a second Start.
	ErrStarted = errors.New("recorder already started")
	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("recorder not started")
)

var _ bridge.Recorder = (*Manager)(nil)

// Dependencies holds the collaborators of a Manager.
type Dependencies struct {
	Backend storage.Backend
	// Influx receives telemetry points when set.
	Influx      *influx.Manager
	Session     *session.Context
	Logger      *slog.Logger
	EventLogger dispatcher.Logger
	// QueueSize bounds each record stream. Records beyond it are dropped.
	QueueSize int
	// TrackInterval throttles ground-truth points in simulation time.
	TrackInterval time.Duration
	Clock         func() time.Time
}

// Manager implements bridge.Recorder. Record calls never block: they are
// queued on buffered dispatcher handlers and dropped when a queue is full.
type Manager struct {
	deps       Dependencies
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher

	// tick-owned
	track *noise.Gate

	mu      sync.Mutex
	started bool
	stopped bool
	dropped atomic.Uint64
}

// NewManager creates a recorder and registers its handlers.
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Backend == nil {
		return nil, errors.New("recorder needs a storage backend")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.EventLogger == nil {
		deps.EventLogger = deps.Logger
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = 4096
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	d, err := dispatcher.New("recorder", deps.EventLogger)
	if err != nil {
		return nil, fmt.Errorf("creating recorder dispatcher: %w", err)
	}

	m := &Manager{
		deps:       deps,
		backend:    deps.Backend,
		dispatcher: d,
		track:      noise.NewGate(deps.TrackInterval),
	}
	m.RegisterHandlers(d)
	return m, nil
}

// Session returns the session context the recorder writes to.
func (m *Manager) Session() *session.Context {
	return m.deps.Session
}

// Start opens a session on the backend. The template provides the
// descriptive fields; UUID and StartTime are filled in here.
func (m *Manager) Start(tmpl core.Session) (*core.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil, ErrStarted
	}

	s := tmpl
	s.UUID = uuid.NewString()
	s.StartTime = m.deps.Clock()
	if err := m.backend.StartSession(&s); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	m.deps.Session.SetSession(&s)
	m.started = true

	m.deps.Logger.Info("Session started",
		"session", s.UUID, "name", s.Name, "id", s.ID, "transport", s.Transport)
	return &s, nil
}

// Stop drains the queued records and ends the session. The recorder
// cannot be restarted.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.stopped = true
	m.mu.Unlock()

	m.dispatcher.Close()

	end := m.deps.Clock()
	s := *m.deps.Session.GetSession()
	s.EndTime = end
	m.deps.Session.SetSession(&s)

	if err := m.backend.EndSession(end); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	m.deps.Logger.Info("Session ended",
		"session", s.UUID, "duration", end.Sub(s.StartTime), "dropped", m.dropped.Load())
	return nil
}

// Dropped returns the number of records lost to full queues.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Manager) dispatch(name string, payload any) {
	_, err := m.dispatcher.Dispatch(dispatcher.Event{
		Name:      name,
		Payload:   payload,
		Source:    "bridge",
		Timestamp: m.deps.Clock(),
	})
	if err == nil {
		return
	}
	if errors.Is(err, dispatcher.ErrQueueFull) {
		if m.dropped.Add(1) == 1 {
			m.deps.Logger.Warn("Recorder queue full, dropping records", "event", name)
		}
		return
	}
	if !errors.Is(err, dispatcher.ErrClosed) {
		m.deps.Logger.Error("Recorder dispatch failed", "event", name, "error", err)
	}
}

func (m *Manager) RecordLink(from, to string, peer string) {
	m.dispatch(EventLink, &core.LinkEvent{
		Time: m.deps.Clock(),
		From: from,
		To:   to,
		Peer: peer,
	})
}

func (m *Manager) RecordTrack(s sensor.Groundtruth) {
	if err := m.track.Allow(s.At); err != nil {
		return
	}
	m.dispatch(EventTrack, TrackPoint(s, m.deps.Clock()))
}

func (m *Manager) RecordCommand(cmd *actuation.Command, res actuation.Result, simTime time.Duration) {
	m.dispatch(EventCommand, CommandRecord(cmd, res, simTime, m.deps.Clock()))
}

// RecordTelemetry encodes msg on the caller's goroutine so the record does
// not alias a message the pipeline may reuse.
func (m *Manager) RecordTelemetry(msg mavlink.Message, simTime time.Duration) {
	raw, err := json.Marshal(msg)
	if err != nil {
		m.deps.Logger.Debug("Telemetry not recorded", "message", mavlink.NameOf(msg), "error", err)
		return
	}
	m.dispatch(EventTelemetry, telemetryJob{
		at:      m.deps.Clock(),
		simTime: simTime,
		name:    mavlink.NameOf(msg),
		raw:     raw,
	})
}
