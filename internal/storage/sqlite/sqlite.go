// Package sqlitestorage records into an in-memory SQLite database through
// the GORM backend and snapshots it to a file with VACUUM INTO, periodically
// and when the session ends.
package sqlitestorage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilgrimsafe/tracker/internal/database"
	"github.com/pilgrimsafe/tracker/internal/logging"
	gormstorage "github.com/pilgrimsafe/tracker/internal/storage/gorm"

	"gorm.io/gorm"
)

type Config struct {
	DumpInterval time.Duration
	// DumpPath is the snapshot file; empty disables dumps.
	DumpPath string
	// MemoryName selects a private in-memory database; empty uses the shared one.
	MemoryName string
}

type Backend struct {
	*gormstorage.Backend
	db  *gorm.DB
	cfg Config
	log *logging.SlogManager

	dumpMu    sync.Mutex
	stop      context.CancelFunc
	stopped   sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.OpenMemory(cfg.MemoryName)
	if err != nil {
		return nil, fmt.Errorf("open in-memory sqlite: %w", err)
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, LogManager: logManager}),
		db:      db,
		cfg:     cfg,
		log:     logManager,
		stop:    func() {},
	}, nil
}

// Init migrates through the GORM backend and starts periodic dumps.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" || b.cfg.DumpInterval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.stopped.Add(1)
	go b.dumpEvery(ctx, b.cfg.DumpInterval)
	return nil
}

// EndSession flushes the session, then dumps.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.Dump()
}

func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.stop()
		b.stopped.Wait()
		err = b.Backend.Close()
	})
	return err
}

// Dump replaces the snapshot at DumpPath. Without a path it does nothing.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	b.dumpMu.Lock()
	defer b.dumpMu.Unlock()
	return database.DumpToFile(b.db, b.cfg.DumpPath)
}

// GetExportedFilePath is the snapshot file, uploaded after the session.
func (b *Backend) GetExportedFilePath() string {
	return b.cfg.DumpPath
}

func (b *Backend) dumpEvery(ctx context.Context, every time.Duration) {
	defer b.stopped.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		start := time.Now()
		if err := b.Dump(); err != nil {
			b.report(fmt.Sprintf("Dump to %s failed: %v", b.cfg.DumpPath, err), "ERROR")
			continue
		}
		b.report(fmt.Sprintf("Dumped to %s in %s", b.cfg.DumpPath, time.Since(start)), "DEBUG")
	}
}

func (b *Backend) report(msg, level string) {
	if b.log != nil {
		b.log.WriteLog("sqlite:dump", msg, level)
	}
}
