// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. The postgres and
// sqlite backends wrap it and only add connection concerns.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/model"
	"github.com/yl5006/sitl-gazebo/internal/model/convert"
	"github.com/yl5006/sitl-gazebo/internal/queue"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultFlushInterval = time.Second
	// maxPathPoints bounds the session path kept for EndSession.
	maxPathPoints = 4096
)

// Dependencies holds all dependencies for the GORM storage backend.
// A nil DB runs the backend in queue-only mode.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	QueueSize     int
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	LinkEvents  *queue.Queue[model.LinkEvent]
	TrackPoints *queue.Queue[model.TrackPoint]
	Commands    *queue.Queue[model.Command]
	Telemetry   *queue.Queue[model.Telemetry]
}

func newQueues(size int) *queues {
	return &queues{
		LinkEvents:  queue.NewBounded[model.LinkEvent](size),
		TrackPoints: queue.NewBounded[model.TrackPoint](size),
		Commands:    queue.NewBounded[model.Command](size),
		Telemetry:   queue.NewBounded[model.Telemetry](size),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	log    *slog.Logger
	queues *queues

	mu      sync.Mutex
	session *model.Session
	path    pathSampler
	nextID  uint

	writeMu   sync.Mutex
	lastWrite atomic.Int64
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps: deps,
		log:  deps.Logger.With("component", "storage"),
	}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues and starts the DB writer goroutine. The
// schema must already be migrated.
func (b *Backend) Init() error {
	b.queues = newQueues(b.deps.QueueSize)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB == nil {
		close(b.done)
		return nil
	}
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		close(b.stopChan)
		<-b.done
		b.flush()
	})
	return nil
}

// StartSession inserts the session row and assigns its ID.
func (b *Backend) StartSession(s *core.Session) error {
	m := convert.CoreToSession(*s)
	m.ID = 0

	if b.deps.DB != nil {
		if err := b.deps.DB.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to insert new session: %w", err)
		}
	} else {
		b.mu.Lock()
		b.nextID++
		m.ID = b.nextID
		b.mu.Unlock()
	}
	s.ID = m.ID

	b.mu.Lock()
	b.session = &m
	b.path = pathSampler{}
	b.mu.Unlock()

	b.log.Info("Session started", "session", m.UUID, "id", m.ID)
	return nil
}

// EndSession flushes pending records and closes the session row with its
// end time and recorded path.
func (b *Backend) EndSession(end time.Time) error {
	b.mu.Lock()
	session := b.session
	points := b.path.points
	b.session = nil
	b.path = pathSampler{}
	b.mu.Unlock()

	if session == nil {
		return storage.ErrNoSession
	}

	b.flush()
	if b.deps.DB == nil {
		return nil
	}

	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"end_time": end,
			"path":     convert.TrackToPath(points),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	b.log.Info("Session ended", "session", session.UUID, "pathPoints", len(points))
	return nil
}

func (b *Backend) sessionID() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return 0
	}
	return b.session.ID
}

func push[T any](q *queue.Queue[T], item T) error {
	if q.Push(item) == 0 {
		return storage.ErrQueueFull
	}
	return nil
}

// RecordLinkEvent queues a state transition.
func (b *Backend) RecordLinkEvent(e *core.LinkEvent) error {
	id := b.sessionID()
	if id == 0 {
		return storage.ErrNoSession
	}
	return push(b.queues.LinkEvents, convert.CoreToLinkEvent(*e, id))
}

// RecordTrackPoint queues a pose and samples it into the session path.
func (b *Backend) RecordTrackPoint(p *core.TrackPoint) error {
	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return storage.ErrNoSession
	}
	id := b.session.ID
	b.path.add(p.Position)
	b.mu.Unlock()

	return push(b.queues.TrackPoints, convert.CoreToTrackPoint(*p, id))
}

// RecordCommand queues an applied actuator command.
func (b *Backend) RecordCommand(c *core.CommandRecord) error {
	id := b.sessionID()
	if id == 0 {
		return storage.ErrNoSession
	}
	return push(b.queues.Commands, convert.CoreToCommand(*c, id))
}

// RecordTelemetry queues an outbound message.
func (b *Backend) RecordTelemetry(r *core.TelemetryRecord) error {
	id := b.sessionID()
	if id == 0 {
		return storage.ErrNoSession
	}
	return push(b.queues.Telemetry, convert.CoreToTelemetry(*r, id))
}

// Pending returns the number of queued records.
func (b *Backend) Pending() int {
	if b.queues == nil {
		return 0
	}
	return b.queues.LinkEvents.Len() + b.queues.TrackPoints.Len() +
		b.queues.Commands.Len() + b.queues.Telemetry.Len()
}

// Dropped returns the number of records refused by full queues.
func (b *Backend) Dropped() uint64 {
	if b.queues == nil {
		return 0
	}
	return b.queues.LinkEvents.Dropped() + b.queues.TrackPoints.Dropped() +
		b.queues.Commands.Dropped() + b.queues.Telemetry.Dropped()
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// writeBatch caps the rows inserted per transaction.
const writeBatch = 1000

// writeQueue writes what is queued now in transactions of at most writeBatch
// rows. A failed batch goes back to the head of the queue and the rest
// waits for the next flush.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	for left := q.Len(); left > 0; {
		items := q.Take(min(left, writeBatch))
		if len(items) == 0 {
			return
		}
		left -= len(items)
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Omit(clause.Associations).Create(&items).Error
		})
		if err != nil {
			log.Error("Error writing records", "table", name, "count", len(items), "error", err)
			q.Requeue(items...)
			return
		}
	}
}

func (b *Backend) flush() {
	if b.deps.DB == nil || b.queues == nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	// link events first so a reader never sees records of an unknown state
	writeQueue(b.deps.DB, b.queues.LinkEvents, "link_events", b.log)
	writeQueue(b.deps.DB, b.queues.Commands, "commands", b.log)
	writeQueue(b.deps.DB, b.queues.TrackPoints, "track_points", b.log)
	writeQueue(b.deps.DB, b.queues.Telemetry, "telemetry", b.log)
	b.lastWrite.Store(int64(time.Since(start)))
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// pathSampler keeps a bounded, evenly thinned copy of the track.
type pathSampler struct {
	points []core.Geodetic
	stride int
	seen   int
}

func (p *pathSampler) add(g core.Geodetic) {
	if p.stride == 0 {
		p.stride = 1
	}
	p.seen++
	if (p.seen-1)%p.stride != 0 {
		return
	}
	p.points = append(p.points, g)
	if len(p.points) < maxPathPoints {
		return
	}
	kept := p.points[:0]
	for i := 0; i < len(p.points); i += 2 {
		kept = append(kept, p.points[i])
	}
	p.points = kept
	p.stride *= 2
}
