// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. The postgres and
// sqlite backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilgrimsafe/tracker/internal/database"
	"github.com/pilgrimsafe/tracker/internal/logging"
	"github.com/pilgrimsafe/tracker/internal/model"
	"github.com/pilgrimsafe/tracker/internal/model/convert"
	"github.com/pilgrimsafe/tracker/internal/queue"
	"github.com/pilgrimsafe/tracker/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued records are written.
const DefaultFlushInterval = 2 * time.Second

// DefaultQueueLimit bounds each record queue while the DB is unreachable.
const DefaultQueueLimit = 100_000

// ErrNoSession is returned by reads and EndSession before a session started.
var ErrNoSession = errors.New("no active session")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
	QueueLimit    int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Samples *queue.Queue[model.TrackSample]
	Routes  *queue.Queue[model.RouteRecord]
	Hints   *queue.Queue[model.HintEvent]
}

func newQueues(limit int) *queues {
	return &queues{
		Samples: queue.New[model.TrackSample](limit),
		Routes:  queue.New[model.RouteRecord](limit),
		Hints:   queue.New[model.HintEvent](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
// Without a DB it only queues, which is what the unit tests exercise.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	session   atomic.Pointer[core.Session]
	stopChan  chan struct{}
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	dbReady   bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = DefaultQueueLimit
	}
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues(b.deps.QueueLimit)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		if err := database.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
		b.dbReady = true
	}

	go b.writeLoop()
	return nil
}

// Close stops the writer and flushes what is still queued.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
		err = b.Flush()
	})
	return err
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// StartSession inserts the session row and makes it the target of queued records.
func (b *Backend) StartSession(s *core.Session) error {
	b.session.Store(s)
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.CoreToSession(*s)
	created, err := gormSession.GetOrInsert(b.deps.DB)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if !created {
		b.log("StartSession", fmt.Sprintf("Resuming session %s", s.ID), "INFO")
	}
	b.sessionID.Store(uint64(gormSession.ID))
	return nil
}

// EndSession flushes pending writes and stamps the session end time.
func (b *Backend) EndSession() error {
	s := b.session.Load()
	if s == nil {
		return ErrNoSession
	}
	if s.EndTime.IsZero() {
		s.EndTime = time.Now()
	}
	if b.deps.DB == nil {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	return b.deps.DB.Model(&model.Session{}).
		Where("id = ?", uint(b.sessionID.Load())).
		Update("end_time", s.EndTime).Error
}

// RecordSample converts and queues a track sample.
func (b *Backend) RecordSample(s *core.EntitySample) error {
	if n := b.queues.Samples.Push(convert.CoreToTrackSample(*s)); n > 0 {
		return fmt.Errorf("sample queue full, %d oldest dropped", n)
	}
	return nil
}

// RecordRoute converts and queues a route record.
func (b *Backend) RecordRoute(r *core.RouteRecord) error {
	if n := b.queues.Routes.Push(convert.CoreToRouteRecord(*r)); n > 0 {
		return fmt.Errorf("route queue full, %d oldest dropped", n)
	}
	return nil
}

// RecordHint converts and queues a hint event.
func (b *Backend) RecordHint(h *core.HintRecord) error {
	if n := b.queues.Hints.Push(convert.CoreToHintEvent(*h)); n > 0 {
		return fmt.Errorf("hint queue full, %d oldest dropped", n)
	}
	return nil
}

// Pending returns the number of queued, unwritten records.
func (b *Backend) Pending() int {
	return b.queues.Samples.Len() + b.queues.Routes.Len() + b.queues.Hints.Len()
}

// Flush writes every queue once. Records stay queued until a session row exists.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if !b.dbReady {
		return nil
	}
	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		return nil
	}

	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Samples, "track samples", b.log, func(items []model.TrackSample) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(b.deps.DB, b.queues.Routes, "route records", b.log, func(items []model.RouteRecord) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
		writeQueue(b.deps.DB, b.queues.Hints, "hint events", b.log, func(items []model.HintEvent) {
			for i := range items {
				items[i].SessionID = sessionID
			}
		}),
	)
}

// SessionSamples reads back the samples of the current session in timestamp order.
func (b *Backend) SessionSamples() ([]core.EntitySample, error) {
	s := b.session.Load()
	if s == nil || b.deps.DB == nil {
		return nil, ErrNoSession
	}
	var rows []model.TrackSample
	err := b.deps.DB.
		Where("session_id = ?", uint(b.sessionID.Load())).
		Order("timestamp_ms, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.EntitySample, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.TrackSampleToCore(r, s.ID))
	}
	return out, nil
}

// SessionRoutes reads back the routes of the current session.
func (b *Backend) SessionRoutes() ([]core.RouteRecord, error) {
	s := b.session.Load()
	if s == nil || b.deps.DB == nil {
		return nil, ErrNoSession
	}
	var rows []model.RouteRecord
	err := b.deps.DB.Where("session_id = ?", uint(b.sessionID.Load())).Order("id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]core.RouteRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.RouteRecordToCore(r, s.ID))
	}
	return out, nil
}

func (b *Backend) log(component, msg, level string) {
	if b.deps.LogManager != nil {
		b.deps.LogManager.WriteLog("gorm:"+component, msg, level)
	}
}

// writeLoop periodically drains the queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log("writeLoop", fmt.Sprintf("Flush failed: %v", err), "ERROR")
			}
		}
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are pushed back for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) error {
	if q.Empty() {
		return nil
	}

	tx := db.Begin()
	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log("writeQueue", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items)
		return fmt.Errorf("write %s: %w", name, err)
	}

	return tx.Commit().Error
}
