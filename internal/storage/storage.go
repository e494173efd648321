// internal/storage/storage.go
package storage

import (
	"errors"
	"time"

	"github.com/yl5006/sitl-gazebo/pkg/core"
)

var (
	// ErrNoSession is returned when a record arrives outside of a session.
	ErrNoSession = errors.New("no active session")
	// ErrQueueFull is returned when a backend refuses a record to bound memory.
	ErrQueueFull = errors.New("record queue full")
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management. StartSession assigns the session ID.
	StartSession(s *core.Session) error
	EndSession(end time.Time) error

	// Recording
	RecordLinkEvent(e *core.LinkEvent) error
	RecordTrackPoint(p *core.TrackPoint) error
	RecordCommand(c *core.CommandRecord) error
	RecordTelemetry(r *core.TelemetryRecord) error
}

// Exporter is an optional interface for backends that write the session
// to a file when it ends.
type Exporter interface {
	GetExportedFilePath() string
}

// WriteStats is an optional interface for backends that batch writes.
type WriteStats interface {
	GetLastDBWriteDuration() time.Duration
	Pending() int
}
