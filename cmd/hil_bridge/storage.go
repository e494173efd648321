package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yl5006/sitl-gazebo/internal/config"
	"github.com/yl5006/sitl-gazebo/internal/database"
	"github.com/yl5006/sitl-gazebo/internal/storage"
	"github.com/yl5006/sitl-gazebo/internal/storage/memory"
	pgstorage "github.com/yl5006/sitl-gazebo/internal/storage/postgres"
	sqlitestorage "github.com/yl5006/sitl-gazebo/internal/storage/sqlite"
	wsstorage "github.com/yl5006/sitl-gazebo/internal/storage/websocket"
)

var errUnknownStorage = errors.New("unknown storage type")

func createStorageBackend(cfg config.StorageConfig, dbm *database.Manager, logger *slog.Logger, start time.Time) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{
			Manager:   dbm,
			Logger:    logger,
			QueueSize: cfg.QueueSize,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     sqlitePath(cfg.SQLite.Path, start),
			QueueSize:    cfg.QueueSize,
		}, dbm, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected")
		return backend, nil

	case "websocket":
		logger.Info("WebSocket storage backend selected", "url", cfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend selected")
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStorage, cfg.Type)
	}
}

// initStorage creates and initializes the configured backend. A Postgres
// server that cannot be reached falls back to the in-memory SQLite backend
// so the session is still recorded.
func initStorage(cfg config.StorageConfig, dbm *database.Manager, logger *slog.Logger, start time.Time) (storage.Backend, error) {
	backend, err := createStorageBackend(cfg, dbm, logger, start)
	if err != nil {
		return nil, err
	}
	err = backend.Init()
	if err == nil {
		return backend, nil
	}
	if cfg.Type != "postgres" {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}

	logger.Warn("Postgres unavailable, recording to local SQLite", "error", err)
	cfg.Type = "sqlite"
	return initStorage(cfg, dbm, logger, start)
}

// sqlitePath stamps the session start into the dump file name.
func sqlitePath(path string, start time.Time) string {
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	stem := file[:len(file)-len(ext)]
	if ext == "" {
		ext = ".db"
	}
	if dir != "" {
		_ = os.MkdirAll(dir, 0755)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, start.Format("20060102_150405"), ext))
}
