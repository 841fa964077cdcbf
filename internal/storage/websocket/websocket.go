// Package websocket implements the storage.Backend interface by streaming
// every record to a recordings server over WebSocket.
package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pilgrimsafe/tracker/internal/wsconn"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/streaming"
)

const ackTimeout = 10 * time.Second

// ErrNoSession is returned by EndSession before StartSession.
var ErrNoSession = errors.New("no active session")

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams track data over WebSocket to the recordings server.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *wsconn.Conn
	cfg  Config

	mu       sync.Mutex
	session  *core.Session
	startMsg []byte // replayed after a reconnect
	now      func() time.Time
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	b := &Backend{cfg: cfg, now: time.Now}
	b.conn = wsconn.New(logger, wsconn.Options{Replay: b.replay})
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.Dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.Close()
}

func (b *Backend) replay() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startMsg == nil {
		return nil
	}
	return [][]byte{b.startMsg}
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	b.conn.Send(data)
	return nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{
		SessionID:   s.ID,
		GroupName:   s.GroupName,
		Device:      s.Device,
		StartTimeMs: s.StartTime.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeStartSession, err)
	}

	b.mu.Lock()
	b.session = s
	b.startMsg = data
	b.mu.Unlock()

	return b.conn.SendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.startMsg = nil
	b.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}
	if s.EndTime.IsZero() {
		s.EndTime = b.now()
	}

	data, err := streaming.Marshal(streaming.TypeEndSession, streaming.EndSessionPayload{
		SessionID: s.ID,
		EndTimeMs: s.EndTime.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", streaming.TypeEndSession, err)
	}
	return b.conn.SendAndWait(data, streaming.TypeEndSession, ackTimeout)
}

func (b *Backend) RecordSample(s *core.EntitySample) error {
	return b.sendEnvelope(streaming.TypeTrackSample, streaming.TrackSamplePayload{
		SessionID: s.SessionID,
		EntityID:  s.EntityID,
		Kind:      s.Kind.String(),
		Sample:    s.Sample,
	})
}

func (b *Backend) RecordRoute(r *core.RouteRecord) error {
	return b.sendEnvelope(streaming.TypeRoute, streaming.RoutePayload{
		SessionID: r.SessionID,
		TimeMs:    r.Time.UnixMilli(),
		Overlay:   r.Overlay,
	})
}

func (b *Backend) RecordHint(h *core.HintRecord) error {
	return b.sendEnvelope(streaming.TypeCenterHint, streaming.CenterHintPayload{
		SessionID: h.SessionID,
		TimeMs:    h.Time.UnixMilli(),
		Hint:      h.Hint,
	})
}
