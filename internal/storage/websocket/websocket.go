package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
	"github.com/yl5006/sitl-gazebo/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket to an ingest server.
// It implements storage.Backend but not storage.Exporter.
type Backend struct {
	stream *stream
	cfg    Config
	mu     sync.Mutex
	nextID uint
	active bool
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		stream: newStream(logger.With("component", "websocket")),
		cfg:    cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.stream.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.stream.close()
}

// Dropped returns the number of envelopes evicted from the replay window
// before they were ever written.
func (b *Backend) Dropped() uint64 {
	return b.stream.out.droppedCount()
}

// startEnvelope encodes the unnumbered start_session envelope.
func startEnvelope(s *core.Session) ([]byte, error) {
	raw, err := json.Marshal(streaming.StartSessionPayload{Session: s})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", streaming.TypeStartSession, err)
	}
	return json.Marshal(streaming.Envelope{Type: streaming.TypeStartSession, Payload: raw})
}

// record queues a numbered envelope; the server confirms it later with a
// cumulative ack.
func (b *Backend) record(msgType string, payload any) error {
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if !active {
		return storage.ErrNoSession
	}
	_, err := b.stream.out.push(msgType, payload)
	return err
}

// StartSession assigns the session ID, sends the header and waits for a
// server ack. The header is replayed on every reconnect until EndSession.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.nextID++
	s.ID = b.nextID
	b.mu.Unlock()

	data, err := startEnvelope(s)
	if err != nil {
		return err
	}
	b.stream.out.begin(data)
	if err := b.stream.await(streaming.TypeStartSession, ackTimeout); err != nil {
		b.stream.out.end()
		return err
	}
	b.mu.Lock()
	b.active = true
	b.mu.Unlock()
	return nil
}

// EndSession queues end_session behind the session's data and waits for
// the server to confirm it.
func (b *Backend) EndSession(end time.Time) error {
	b.mu.Lock()
	active := b.active
	b.active = false
	b.mu.Unlock()
	if !active {
		return storage.ErrNoSession
	}

	defer b.stream.out.end()
	if _, err := b.stream.out.push(streaming.TypeEndSession, map[string]time.Time{"endTime": end}); err != nil {
		return err
	}
	return b.stream.await(streaming.TypeEndSession, ackTimeout)
}

func (b *Backend) RecordLinkEvent(e *core.LinkEvent) error {
	return b.record(streaming.TypeLinkEvent, e)
}

func (b *Backend) RecordTrackPoint(p *core.TrackPoint) error {
	return b.record(streaming.TypeTrackPoint, p)
}

func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	return b.record(streaming.TypeCommand, c)
}

func (b *Backend) RecordTelemetry(r *core.TelemetryRecord) error {
	return b.record(streaming.TypeTelemetry, r)
}
