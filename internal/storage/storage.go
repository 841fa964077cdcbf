// Package storage defines the track recorder interfaces.
package storage

import "github.com/pilgrimsafe/tracker/pkg/core"

// Backend is the interface all track recorders must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(session *core.Session) error
	EndSession() error

	// Recording
	RecordSample(s *core.EntitySample) error
	RecordRoute(r *core.RouteRecord) error
	RecordHint(h *core.HintRecord) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the recordings server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
