package storage

import (
	"log/slog"
	"time"

	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// Recorder feeds a Backend from the map screen. Write errors are logged,
// never returned, so the owner loop keeps running when a backend fails.
type Recorder struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder wraps backend.
func NewRecorder(backend Backend, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{backend: backend, logger: logger, now: time.Now}
}

func (r *Recorder) RecordSample(s core.EntitySample) {
	if err := r.backend.RecordSample(&s); err != nil {
		r.logger.Warn("Failed to record sample", "entity", s.EntityID, "error", err)
	}
}

func (r *Recorder) RecordRoute(sessionID string, o core.RouteOverlay) {
	r.writeRoute(core.RouteRecord{SessionID: sessionID, Time: r.now(), Overlay: o})
}

// RecordHint stores an accepted center hint.
func (r *Recorder) RecordHint(sessionID string, h core.CenterHint) {
	r.writeHint(core.HintRecord{SessionID: sessionID, Time: r.now(), Hint: h})
}

func (r *Recorder) writeRoute(rec core.RouteRecord) {
	if err := r.backend.RecordRoute(&rec); err != nil {
		r.logger.Warn("Failed to record route", "destination", rec.Overlay.DestinationID, "error", err)
	}
}

func (r *Recorder) writeHint(rec core.HintRecord) {
	if err := r.backend.RecordHint(&rec); err != nil {
		r.logger.Warn("Failed to record hint", "hint", rec.Hint.ID, "error", err)
	}
}

// Commands registered by Recorder.Queue.
const (
	CmdRecordSample = "storage:sample"
	CmdRecordRoute  = "storage:route"
	CmdRecordHint   = "storage:hint"
)

// Registrar is the part of the dispatcher Queue needs.
type Registrar interface {
	Register(command string, h dispatcher.HandlerFunc, opts ...dispatcher.Option)
	Dispatch(e dispatcher.Event) (any, error)
}

// Queued hands recordings to buffered dispatcher handlers, so backend
// writes happen on worker goroutines instead of the owner loop. Samples and
// routes are dropped when their queue is full; hints wait for room.
type Queued struct {
	d      Registrar
	logger *slog.Logger
	now    func() time.Time
}

// Queue registers r's writes on d. size bounds the sample and route queues.
func (r *Recorder) Queue(d Registrar, size int) *Queued {
	d.Register(CmdRecordSample, func(e dispatcher.Event) (any, error) {
		r.RecordSample(e.Payload.(core.EntitySample))
		return nil, nil
	}, dispatcher.Buffered(size))
	d.Register(CmdRecordRoute, func(e dispatcher.Event) (any, error) {
		r.writeRoute(e.Payload.(core.RouteRecord))
		return nil, nil
	}, dispatcher.Buffered(size))
	d.Register(CmdRecordHint, func(e dispatcher.Event) (any, error) {
		r.writeHint(e.Payload.(core.HintRecord))
		return nil, nil
	}, dispatcher.Buffered(64), dispatcher.Blocking())
	return &Queued{d: d, logger: r.logger, now: r.now}
}

func (q *Queued) enqueue(command string, payload any) {
	if _, err := q.d.Dispatch(dispatcher.Event{Command: command, Payload: payload, Timestamp: q.now()}); err != nil {
		q.logger.Warn("Recording dropped", "command", command, "error", err)
	}
}

func (q *Queued) RecordSample(s core.EntitySample) {
	q.enqueue(CmdRecordSample, s)
}

func (q *Queued) RecordRoute(sessionID string, o core.RouteOverlay) {
	q.enqueue(CmdRecordRoute, core.RouteRecord{SessionID: sessionID, Time: q.now(), Overlay: o})
}

func (q *Queued) RecordHint(sessionID string, h core.CenterHint) {
	q.enqueue(CmdRecordHint, core.HintRecord{SessionID: sessionID, Time: q.now(), Hint: h})
}
