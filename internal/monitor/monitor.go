package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/bridge"
	"github.com/yl5006/sitl-gazebo/internal/influx"
	"github.com/yl5006/sitl-gazebo/internal/session"
	"github.com/yl5006/sitl-gazebo/internal/storage"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Status  func() bridge.Status
	Backend storage.Backend
	// RecorderDropped reports records lost before reaching the backend.
	RecorderDropped func() uint64
	Influx          *influx.Manager
	Session         *session.Context
	Logger          *slog.Logger
	// StatusFile is rewritten on every interval when set.
	StatusFile string
	Interval   time.Duration
}

// Report is one status sample.
type Report struct {
	Time    time.Time     `json:"time"`
	Session string        `json:"session,omitempty"`
	Bridge  bridge.Status `json:"bridge"`
	Storage *StorageStats `json:"storage,omitempty"`
}

// StorageStats describes the recorder write path.
type StorageStats struct {
	Pending         int     `json:"pending"`
	LastWriteMs     float64 `json:"lastWriteMs"`
	RecorderDropped uint64  `json:"recorderDropped"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetReport samples the bridge and the storage backend.
func (s *Service) GetReport() Report {
	r := Report{Time: time.Now()}
	if s.deps.Status != nil {
		r.Bridge = s.deps.Status()
	}
	if s.deps.Session != nil {
		r.Session = s.deps.Session.GetSession().UUID
	}

	ws, ok := s.deps.Backend.(storage.WriteStats)
	if ok || s.deps.RecorderDropped != nil {
		r.Storage = &StorageStats{}
	}
	if ok {
		r.Storage.Pending = ws.Pending()
		r.Storage.LastWriteMs = float64(ws.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	if s.deps.RecorderDropped != nil {
		r.Storage.RecorderDropped = s.deps.RecorderDropped()
	}
	return r
}

// Fields flattens a report for time-series storage.
func (r Report) Fields() map[string]any {
	b := r.Bridge
	f := map[string]any{
		"state":            b.State.String(),
		"telemetry_sent":   b.TelemetrySent,
		"suppressed":       b.Suppressed,
		"send_errors":      b.SendErrors,
		"received":         b.Received,
		"decode_errors":    b.DecodeErrors,
		"stale_commands":   b.StaleCommands,
		"failsafe_engaged": b.FailsafeEngaged,
		"last_seq":         b.LastSeq,
		"armed":            b.Armed,
		"time_offset_us":   b.TimeOffset.Microseconds(),
		"mirror_dropped":   b.MirrorDropped,
	}
	if r.Storage != nil {
		f["pending"] = r.Storage.Pending
		f["last_write_ms"] = r.Storage.LastWriteMs
		f["recorder_dropped"] = r.Storage.RecorderDropped
	}
	return f
}

func (s *Service) report(statusFile *os.File) {
	r := s.GetReport()

	s.deps.Logger.Info("Bridge status",
		"state", r.Bridge.State.String(),
		"peer", r.Bridge.Peer,
		"sent", r.Bridge.TelemetrySent,
		"received", r.Bridge.Received,
		"lastSeq", r.Bridge.LastSeq,
		"armed", r.Bridge.Armed,
		"timeOffset", r.Bridge.TimeOffset,
	)

	if statusFile != nil {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		_, _ = statusFile.Write(append(data, '\n'))
	}

	if s.deps.Influx != nil {
		p := influx.PerformancePoint(r.Session, r.Time, r.Fields())
		if err := s.deps.Influx.WritePoint(influx.BucketPerformance, p); err != nil {
			s.deps.Logger.Debug("Influx status write failed", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(done)
		if statusFile != nil {
			defer statusFile.Close()
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.report(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
