package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_InjectsDynamicAttrs(t *testing.T) {
	var buf bytes.Buffer
	mode := "groups"
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("mode", mode)}
	})
	logger := slog.New(h)

	logger.Info("first")
	mode = "helpdesk"
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "msg=first mode=groups")
	assert.Contains(t, out, "msg=second mode=helpdesk")
}

func TestContextHandler_WithAttrsKeepsProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("session", "s-1")}
	})
	logger := slog.New(h).With("component", "route").WithGroup("req")

	logger.Info("requested", "dest", "m-2")

	out := buf.String()
	assert.Contains(t, out, "component=route")
	assert.Contains(t, out, "req.dest=m-2")
	assert.Contains(t, out, "req.session=s-1")
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil))
	logger.Info("plain")
	assert.Contains(t, buf.String(), "plain")
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("graylog unreachable")
}

func TestMultiHandler(t *testing.T) {
	var info, debug bytes.Buffer
	infoH := slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugH := slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug})

	m := NewMultiHandler(nil, infoH, nil, debugH)
	require.Len(t, m.handlers, 2)
	assert.True(t, m.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewMultiHandler(infoH).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))

	logger := slog.New(m).With("component", "animator").WithGroup("step")
	logger.Debug("tick", "id", "m-3")
	logger.Info("done", "id", "m-3")

	assert.NotContains(t, info.String(), "tick")
	assert.Contains(t, info.String(), "component=animator")
	assert.Contains(t, info.String(), "step.id=m-3")
	assert.Contains(t, debug.String(), "msg=tick")
	assert.Same(t, m, m.WithGroup(""))
}

func TestMultiHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiHandler(failingHandler{}, slog.NewTextHandler(&buf, nil))

	r := slog.NewRecord(time.Now(), slog.LevelWarn, "sensor lost", 0)
	err := m.Handle(context.Background(), r)

	assert.EqualError(t, err, "graylog unreachable")
	assert.Contains(t, buf.String(), "sensor lost")
}
