package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of one tracking session. The first block
// of the session ID keeps files of sessions started in the same second apart.
func LogFilePath(logsDir, appName, sessionID string, start time.Time) string {
	name := fmt.Sprintf("%s.%s", appName, start.Format("20060102_150405"))
	if len(sessionID) >= 8 {
		name += "." + sessionID[:8]
	}
	return filepath.Join(logsDir, name+".log")
}
