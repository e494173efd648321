// Package postgres implements the storage.Backend interface on PostgreSQL
// with PostGIS. Writes go through the GORM backend's queues.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/database"
	gormstorage "github.com/yl5006/sitl-gazebo/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	// DB is used as is when set; otherwise Init connects from the db.* config.
	DB            *gorm.DB
	Manager       *database.Manager
	Logger        *slog.Logger
	QueueSize     int
	FlushInterval time.Duration
}

// Backend wraps the GORM backend with the Postgres connection and schema setup.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend. Nothing connects until Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects if needed, installs PostGIS, migrates the schema and starts
// the DB writer.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		var err error
		db, err = b.deps.Manager.OpenPostgres()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}
	if err := b.deps.Manager.Setup(db); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.deps.Logger,
		QueueSize:     b.deps.QueueSize,
		FlushInterval: b.deps.FlushInterval,
	})
	return b.Backend.Init()
}

// Close flushes and stops the writer. The connection pool is closed only
// when the backend opened it.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.deps.DB != nil {
		return nil
	}
	sqlDB, err := b.Backend.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
