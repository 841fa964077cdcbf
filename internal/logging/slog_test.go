package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// captureStdout points osStdout at a pipe; the returned func restores it and
// returns everything written.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	r, w, err := osPipe()
	require.NoError(t, err)
	prev := osStdout
	osStdout = w
	return func() string {
		_ = w.Close()
		osStdout = prev
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		_ = r.Close()
		return buf.String()
	}
}

func TestSetup_Outputs(t *testing.T) {
	t.Run("file only", func(t *testing.T) {
		stdout := captureStdout(t)
		var file bytes.Buffer
		m := NewSlogManager()
		m.Setup(&file, "info", nil)
		m.Logger().Info("member joined", "member", "m-1")

		assert.Empty(t, stdout())
		assert.Contains(t, file.String(), "Logging initialized")
		assert.Contains(t, file.String(), "member=m-1")
	})
	t.Run("stdout without file", func(t *testing.T) {
		stdout := captureStdout(t)
		m := NewSlogManager()
		m.Setup(nil, "info", nil)
		m.Logger().Info("no file")
		assert.Contains(t, stdout(), "no file")
	})
}

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"WARN", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("frame tick")
			m.Logger().Error("route failed")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("frame tick")))
			assert.Contains(t, buf.String(), "route failed")
		})
	}
}

func TestSetup_TimeIsUTC(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", nil)
	assert.Regexp(t, `time=\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`, buf.String())
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var first, second bytes.Buffer
	m := NewSlogManager()
	m.Setup(&first, "info", nil)
	m.Setup(&second, "info", nil)
	m.Logger().Info("after swap")

	assert.NotContains(t, first.String(), "after swap")
	assert.Contains(t, second.String(), "after swap")
}

func TestSetup_ExtraHandlersReceiveRecords(t *testing.T) {
	var file, extra bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil, slog.NewJSONHandler(&extra, nil))

	m.Logger().Info("hint received", "hint", "gate-4")

	assert.Contains(t, file.String(), "hint received")
	assert.Contains(t, extra.String(), `"hint":"gate-4"`)
}

func TestSetup_WithOTelProvider(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&buf, "info", sdklog.NewLoggerProvider())

	m.Logger().Info("bridged")
	assert.Contains(t, buf.String(), "bridged")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestLoggerAndFlush_BeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Same(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
	m.WriteLog("route", "dropped", "info")
}

func TestWriteLog(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "level=DEBUG"},
		{"INFO", "level=INFO"},
		{"warn", "level=WARN"},
		{"Error", "level=ERROR"},
		{"verbose", "level=INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, "debug", nil)
			m.WriteLog("sqlite:dumpLoop", "dumped", tt.level)

			assert.Contains(t, buf.String(), tt.want+" msg=dumped component=sqlite:dumpLoop")
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
