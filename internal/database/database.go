// Package database opens the GORM connections used by the relational track
// stores and migrates their schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	pingTimeout  = 5 * time.Second
	maxOpenConns = 10
	sharedMemory = "file::memory:?cache=shared"
)

var silent = logger.Default.LogMode(logger.Silent)

// Manager connects to Postgres, or to a local SQLite database when Postgres
// cannot be reached.
type Manager struct {
	DB *gorm.DB
	// Local is set when DB is the SQLite fallback.
	Local bool
	// SqliteFilePath is the fallback file; empty means in memory.
	SqliteFilePath string

	cfg config.DBConfig
	log zerolog.Logger
}

func NewManager(cfg config.DBConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, log: log}
}

// Connect opens Postgres and pings it, falling back to SQLite on failure.
func (m *Manager) Connect(ctx context.Context) error {
	db, err := OpenPostgres(m.cfg)
	if err == nil {
		err = ping(ctx, db)
	}
	if err == nil {
		m.DB = db
		m.Local = false
		m.log.Info().Str("host", m.cfg.Host).Str("database", m.cfg.Database).Msg("Connected to Postgres")
		return nil
	}

	m.log.Error().Err(err).Msg("Postgres unavailable, falling back to SQLite")
	dsn := m.SqliteFilePath
	if dsn == "" {
		dsn = sharedMemory
	}
	if db, err = openSqlite(dsn); err != nil {
		return fmt.Errorf("open sqlite fallback: %w", err)
	}
	m.DB = db
	m.Local = true
	m.log.Info().Str("path", m.SqliteFilePath).Msg("Recording to local SQLite")
	return nil
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Migrate seeds the tracker_info row once, enables PostGIS on Postgres and
// migrates every track table.
func Migrate(db *gorm.DB) error {
	if !db.Migrator().HasTable(&model.TrackerInfo{}) {
		if err := db.AutoMigrate(&model.TrackerInfo{}); err != nil {
			return fmt.Errorf("migrate tracker_info: %w", err)
		}
		info := model.TrackerInfo{Name: "Pilgrim Tracker", Description: "Pilgrim group location tracks"}
		if err := db.Create(&info).Error; err != nil {
			return fmt.Errorf("seed tracker_info: %w", err)
		}
	}
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
			return fmt.Errorf("enable postgis: %w", err)
		}
	}
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}
	return nil
}

// PostgresDSN renders cfg as a libpq keyword string.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 silent,
	})
}

// OpenMemory returns a shared-cache in-memory SQLite database. Every
// distinct name is a separate database.
func OpenMemory(name string) (*gorm.DB, error) {
	if name == "" {
		return openSqlite(sharedMemory)
	}
	return openSqlite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

var sqlitePragmas = []string{
	"PRAGMA user_version = 1",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA synchronous = OFF",
	"PRAGMA cache_size = -32000",
	"PRAGMA temp_store = MEMORY",
}

func openSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 silent,
	})
	if err != nil {
		return nil, err
	}
	for _, p := range sqlitePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// DumpToFile writes a consistent copy of db to path with VACUUM INTO,
// replacing an earlier dump.
func DumpToFile(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("dump path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
