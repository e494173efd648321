// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/config"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// Backend stores session data in memory and exports it to JSON when the
// session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	links     []core.LinkEvent
	track     []core.TrackPoint
	commands  []core.CommandRecord
	telemetry []core.TelemetryRecord
	dropped   uint64

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports a session that was never ended.
func (b *Backend) Close() error {
	b.mu.Lock()
	open := b.session != nil
	b.mu.Unlock()
	if open {
		return b.EndSession(time.Now())
	}
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	session := *s
	b.session = &session

	// Reset all collections
	b.links = nil
	b.track = nil
	b.commands = nil
	b.telemetry = nil
	b.dropped = 0

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(end time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.session.EndTime = end
	err := b.exportJSON()
	b.session = nil
	return err
}

// appendLimited appends v unless the per-stream limit is reached.
func appendLimited[T any](b *Backend, list *[]T, v T) error {
	if b.session == nil {
		return storage.ErrNoSession
	}
	if b.cfg.MaxRecords > 0 && len(*list) >= b.cfg.MaxRecords {
		b.dropped++
		return storage.ErrQueueFull
	}
	*list = append(*list, v)
	return nil
}

// RecordLinkEvent records a bridge state transition
func (b *Backend) RecordLinkEvent(e *core.LinkEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return appendLimited(b, &b.links, *e)
}

// RecordTrackPoint records a ground-truth pose
func (b *Backend) RecordTrackPoint(p *core.TrackPoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return appendLimited(b, &b.track, *p)
}

// RecordCommand records an applied actuator command
func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return appendLimited(b, &b.commands, *c)
}

// RecordTelemetry records an outbound message
func (b *Backend) RecordTelemetry(r *core.TelemetryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return appendLimited(b, &b.telemetry, *r)
}

// Dropped returns how many records hit the per-stream limit this session.
func (b *Backend) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// GetExportedFilePath returns the path to the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
