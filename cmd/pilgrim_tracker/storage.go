package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/internal/database"
	"github.com/pilgrimsafe/tracker/internal/influx"
	"github.com/pilgrimsafe/tracker/internal/logging"
	"github.com/pilgrimsafe/tracker/internal/storage"
	influxstorage "github.com/pilgrimsafe/tracker/internal/storage/influx"
	"github.com/pilgrimsafe/tracker/internal/storage/memory"
	pgstorage "github.com/pilgrimsafe/tracker/internal/storage/postgres"
	sqlitestorage "github.com/pilgrimsafe/tracker/internal/storage/sqlite"
	wsstorage "github.com/pilgrimsafe/tracker/internal/storage/websocket"
	"github.com/rs/zerolog"
)

func createStorageBackend(cfg config.Config, logManager *logging.SlogManager, logOut io.Writer) (storage.Backend, error) {
	logger := logManager.Logger()
	storageCfg := cfg.Storage

	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized")
		mgr := database.NewManager(cfg.DB, componentLogger(logOut, "database"))
		mgr.SqliteFilePath = filepath.Join(storageCfg.Memory.OutputDir,
			fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405")))
		return pgstorage.New(pgstorage.Dependencies{
			Manager:    mgr,
			LogManager: logManager,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, logManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "influx":
		if !cfg.Influx.Enabled {
			return nil, fmt.Errorf("storage type influx requires influx.enabled")
		}
		backupPath := filepath.Join(cfg.LogsDir,
			fmt.Sprintf("%s_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405")))
		mgr := influx.NewManager(cfg.Influx, componentLogger(logOut, "influx"), backupPath)
		logger.Info("InfluxDB storage backend initialized", "bucket", mgr.Bucket())
		return influxstorage.New(mgr), nil

	case "websocket":
		wsURL := storageCfg.WebSocket.URL
		if wsURL == "" {
			wsURL = httpToWS(cfg.API.ServerURL) + "/api"
		}
		secret := storageCfg.WebSocket.Secret
		if secret == "" {
			secret = cfg.API.APIKey
		}
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: secret,
		}, logger.With("component", "storage")), nil

	default:
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
}

// componentLogger builds the zerolog logger of the database and influx managers.
func componentLogger(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

