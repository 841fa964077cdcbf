// Package postgres implements the storage.Backend interface on PostgreSQL/PostGIS
// through the GORM backend. When Postgres is unreachable the database manager
// falls back to a local SQLite file.
package postgres

import (
	"context"
	"fmt"

	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/internal/database"
	"github.com/pilgrimsafe/tracker/internal/logging"
	gormstorage "github.com/pilgrimsafe/tracker/internal/storage/gorm"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         *gorm.DB // injected connection; nil connects through Manager
	Manager    *database.Manager
	LogManager *logging.SlogManager
}

// Backend wraps the GORM backend with connection management.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.Manager == nil {
		deps.Manager = database.NewManager(config.DBConfig{}, zerolog.Nop())
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{LogManager: deps.LogManager}),
		deps:    deps,
	}
}

// Init connects (unless a DB was injected), migrates and starts the writer.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		if err := b.deps.Manager.Connect(context.Background()); err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if b.deps.Manager.Local && b.deps.LogManager != nil {
			b.deps.LogManager.WriteLog("postgres:Init", "Postgres unavailable, recording to local SQLite", "WARN")
		}
		db = b.deps.Manager.DB
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: b.deps.LogManager,
	})
	return b.Backend.Init()
}

// Local reports whether the manager fell back to SQLite.
func (b *Backend) Local() bool {
	return b.deps.DB == nil && b.deps.Manager.Local
}
