// Package wsconn manages a reconnecting WebSocket client connection with a
// single write goroutine, used by the streaming storage backend and the
// remote map renderer.
package wsconn

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pilgrimsafe/tracker/pkg/streaming"
)

const (
	sendChSize = 10_000
	ackChSize  = 16
	writeWait  = 10 * time.Second
)

// Reconnect tuning. Variables so tests can shorten them.
var (
	MaxReconnect   = 10
	InitialBackoff = time.Second
	MaxBackoff     = 30 * time.Second
)

// ErrClosed is returned by SendAndWait once the connection is closed.
var ErrClosed = errors.New("connection closed")

// Conn is a WebSocket client connection. Sends never block the caller;
// messages other than acks are handed to the OnMessage callback from the
// read goroutine.
type Conn struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when conn is dropped
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	reconnecting bool

	wsURL  string
	secret string

	// replay returns the messages that rebuild server state after a reconnect.
	replay      func() [][]byte
	onMessage   func(streaming.Envelope)
	onReconnect func()

	logger *slog.Logger
}

// Options configures optional callbacks of a Conn.
type Options struct {
	// Replay is called after every reconnect; its messages are written
	// before any queued message.
	Replay func() [][]byte
	// OnMessage receives every non-ack envelope.
	OnMessage func(streaming.Envelope)
	// OnReconnect is called after a successful reconnect.
	OnReconnect func()
}

// New creates an unconnected Conn.
func New(logger *slog.Logger, opts Options) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		sendCh:      make(chan []byte, sendChSize),
		ackCh:       make(chan streaming.AckMessage, ackChSize),
		done:        make(chan struct{}),
		replay:      opts.Replay,
		onMessage:   opts.OnMessage,
		onReconnect: opts.OnReconnect,
		logger:      logger,
	}
}

// Dial connects to the WebSocket server and starts read/write loops.
func (c *Conn) Dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.attach(conn)
	return nil
}

// attach makes conn current and starts its loops.
func (c *Conn) attach(conn *ws.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	stop := make(chan struct{})
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
	return true
}

// DialInBackground keeps retrying the connection in the background, so a
// renderer that starts after us is picked up.
func (c *Conn) DialInBackground(rawURL, secret string) {
	c.wsURL = rawURL
	c.secret = secret
	go c.reconnect()
}

// Connected reports whether a socket is currently open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *Conn) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop owns writes to conn until the socket is dropped or the Conn
// is closed.
func (c *Conn) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		var data []byte
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case data = <-c.sendCh:
		}
		if err := writeText(conn, data); err != nil {
			c.logger.Warn("WebSocket write failed", "error", err)
			c.dropConn(conn)
			return
		}
	}
}

func writeText(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop routes acks to ackCh and everything else to onMessage.
func (c *Conn) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			c.dropConn(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err == nil && ack.Type == streaming.TypeAck {
			select {
			case c.ackCh <- ack:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", ack.For)
			}
			continue
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
			c.logger.Debug("Unknown message received", "raw", string(message))
			continue
		}
		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

// dropConn closes conn if it is still current and starts reconnecting.
// Both loops call it; only the first call for a socket has an effect.
func (c *Conn) dropConn(conn *ws.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn || c.closed {
		return
	}
	_ = conn.Close()
	close(c.stop)
	c.conn = nil
	c.stop = nil
	go c.reconnect()
}

// reconnect redials with exponential backoff, up to MaxReconnect attempts.
// The replay messages go out on the new socket before its loops start, so
// they precede anything still queued.
func (c *Conn) reconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	wait := InitialBackoff
	for attempt := 1; attempt <= MaxReconnect; attempt, wait = attempt+1, min(2*wait, MaxBackoff) {
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		conn, err := c.dialOnce()
		if err == nil {
			err = c.writeReplay(conn)
			if err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			c.logger.Warn("WebSocket reconnect failed", "attempt", attempt, "next", min(2*wait, MaxBackoff), "error", err)
			continue
		}

		if !c.attach(conn) {
			return
		}
		c.logger.Info("WebSocket reconnected", "url", c.wsURL, "attempt", attempt)
		if c.onReconnect != nil {
			c.onReconnect()
		}
		return
	}
	c.logger.Error("WebSocket gave up reconnecting", "url", c.wsURL, "attempts", MaxReconnect)
}

func (c *Conn) writeReplay(conn *ws.Conn) error {
	if c.replay == nil {
		return nil
	}
	for _, msg := range c.replay() {
		if err := writeText(conn, msg); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}
	return nil
}

// Send queues data for the write loop and reports whether it was queued.
// It never blocks; a full queue drops the message.
func (c *Conn) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
	}
	c.logger.Warn("WebSocket send queue full, message dropped", "queued", len(c.sendCh))
	return false
}

// ErrAckTimeout is returned by SendAndWait when no matching ack arrives in time.
var ErrAckTimeout = errors.New("ack timeout")

// SendAndWait sends data and waits for an ack whose For equals ackFor.
// Acks for other types arriving meanwhile are discarded.
func (c *Conn) SendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if !c.Send(data) {
		return fmt.Errorf("%s: send queue full", ackFor)
	}
	deadline := time.After(timeout)
	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("%s: %w after %s", ackFor, ErrAckTimeout, timeout)
		case <-c.done:
			return fmt.Errorf("%s: %w", ackFor, ErrClosed)
		}
	}
}

// Close stops every goroutine and closes the socket with a normal-closure
// frame. Later calls do nothing.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn, c.stop = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	bye := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
	_ = conn.WriteControl(ws.CloseMessage, bye, time.Now().Add(time.Second))
	return conn.Close()
}
