// Package influxstorage implements the storage.Backend interface by writing
// track points to InfluxDB, or to a gzipped line protocol backup when the
// server is unreachable.
package influxstorage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pilgrimsafe/tracker/internal/influx"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// ErrNoSession is returned by EndSession before StartSession.
var ErrNoSession = errors.New("no active session")

// Backend writes every record as a point in the manager's bucket.
type Backend struct {
	mgr     *influx.Manager
	session atomic.Pointer[core.Session]
	now     func() time.Time
}

func New(mgr *influx.Manager) *Backend {
	return &Backend{mgr: mgr, now: time.Now}
}

// Init connects the manager unless it already has a destination. A failed
// ping falls back to the backup file inside the manager, so only
// configuration errors surface here.
func (b *Backend) Init() error {
	if b.mgr.Ready() {
		return nil
	}
	if err := b.mgr.Connect(context.Background()); err != nil {
		return fmt.Errorf("failed to connect to influxdb: %w", err)
	}
	return nil
}

// Close flushes and releases the manager.
func (b *Backend) Close() error {
	return b.mgr.Close()
}

// StartSession writes the session start marker.
func (b *Backend) StartSession(s *core.Session) error {
	b.session.Store(s)
	return b.write(influx.SessionPoint(*s, "start", s.StartTime))
}

// EndSession writes the session end marker.
func (b *Backend) EndSession() error {
	s := b.session.Load()
	if s == nil {
		return ErrNoSession
	}
	if s.EndTime.IsZero() {
		s.EndTime = b.now()
	}
	return b.write(influx.SessionPoint(*s, "end", s.EndTime))
}

func (b *Backend) RecordSample(s *core.EntitySample) error {
	return b.write(influx.SamplePoint(*s))
}

func (b *Backend) RecordRoute(r *core.RouteRecord) error {
	return b.write(influx.RoutePoint(*r))
}

func (b *Backend) RecordHint(h *core.HintRecord) error {
	return b.write(influx.HintPoint(*h))
}

func (b *Backend) write(p *write.Point) error {
	return b.mgr.WritePoint(p)
}
