package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 6, 14, 5, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		logsDir   string
		sessionID string
		want      string
	}{
		{"no session", "pilgrimlogs", "", filepath.Join("pilgrimlogs", "pilgrim_tracker.20260614_053000.log")},
		{"short session ignored", "logs", "abc", filepath.Join("logs", "pilgrim_tracker.20260614_053000.log")},
		{
			"session prefix", filepath.Join("/var", "log", "pilgrim"), "5f0c2a9e-1d7b-4c1e-9d3a-7b2f8e6a1c44",
			filepath.Join("/var", "log", "pilgrim", "pilgrim_tracker.20260614_053000.5f0c2a9e.log"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "pilgrim_tracker", tt.sessionID, start))
		})
	}
}
