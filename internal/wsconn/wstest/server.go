// Package wstest provides an in-process WebSocket server that records every
// envelope it receives, for tests of WebSocket clients.
package wstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pilgrimsafe/tracker/pkg/streaming"
)

// Server upgrades every request, records envelopes and acks the
// configured message types.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	messages []streaming.Envelope
	conns    []*ws.Conn
	secrets  []string
	ackTypes map[string]bool
}

// NewServer starts a server acking ackTypes. It is closed on test cleanup.
func NewServer(t *testing.T, ackTypes ...string) *Server {
	t.Helper()
	s := &Server{ackTypes: make(map[string]bool)}
	for _, typ := range ackTypes {
		s.ackTypes[typ] = true
	}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.secrets = append(s.secrets, r.URL.Query().Get("secret"))
		s.mu.Unlock()
		s.serve(c)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(c *ws.Conn) {
	defer c.Close()
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		s.mu.Lock()
		s.messages = append(s.messages, env)
		ack := s.ackTypes[env.Type]
		s.mu.Unlock()

		if ack {
			data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
			s.mu.Lock()
			err := c.WriteMessage(ws.TextMessage, data)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// WSURL returns the ws:// address of the server.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Messages returns a copy of every envelope received so far.
func (s *Server) Messages() []streaming.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]streaming.Envelope, len(s.messages))
	copy(cp, s.messages)
	return cp
}

// Types returns the message types received so far, in order.
func (s *Server) Types() []string {
	msgs := s.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// Reset forgets the recorded envelopes.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Connections returns how many clients have connected.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Secret returns the secret query parameter of the i-th connection.
func (s *Server) Secret(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secrets[i]
}

// Push sends an envelope to the most recent client.
func (s *Server) Push(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[len(s.conns)-1]
	return c.WriteMessage(ws.TextMessage, data)
}

// DropAll closes every client connection from the server side.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// WaitFor polls until cond holds or the timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
