// internal/storage/memory/memory.go
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// ErrNoSession is returned by EndSession before StartSession.
var ErrNoSession = errors.New("no active session")

// TrackRecord groups an entity with its recorded samples
type TrackRecord struct {
	EntityID string
	Kind     core.EntityKind
	Samples  []core.LocationSample
}

// Backend stores session tracks in memory and exports them to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	now     func() time.Time

	tracks map[string]*TrackRecord // keyed by entity ID
	routes []core.RouteRecord
	hints  []core.HintRecord

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		now:    time.Now,
		tracks: make(map[string]*TrackRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops anything recorded before
func (b *Backend) StartSession(session *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = session
	b.tracks = make(map[string]*TrackRecord)
	b.routes = nil
	b.hints = nil
	b.lastExportPath = ""

	return nil
}

// EndSession stamps the end time and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	if b.session.EndTime.IsZero() {
		b.session.EndTime = b.now()
	}
	return b.exportJSON()
}

// RecordSample appends a sample to its entity's track
func (b *Backend) RecordSample(s *core.EntitySample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	record, ok := b.tracks[s.EntityID]
	if !ok {
		record = &TrackRecord{EntityID: s.EntityID, Kind: s.Kind}
		b.tracks[s.EntityID] = record
	}
	record.Samples = append(record.Samples, s.Sample)
	return nil
}

// RecordRoute records a rendered route
func (b *Backend) RecordRoute(r *core.RouteRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes = append(b.routes, *r)
	return nil
}

// RecordHint records an accepted center hint
func (b *Backend) RecordHint(h *core.HintRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hints = append(b.hints, *h)
	return nil
}

// GetTrack returns a copy of the track recorded for entityID
func (b *Backend) GetTrack(entityID string) (TrackRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.tracks[entityID]
	if !ok {
		return TrackRecord{}, false
	}
	out := *record
	out.Samples = append([]core.LocationSample(nil), record.Samples...)
	return out, true
}

// Counts returns the number of tracks, routes and hints recorded so far
func (b *Backend) Counts() (tracks, routes, hints int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tracks), len(b.routes), len(b.hints)
}

// GetExportedFilePath returns the path of the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported session
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.UploadMetadata{}
	}
	return core.UploadMetadata{
		SessionID:       b.session.ID,
		GroupName:       b.session.GroupName,
		Device:          b.session.Device,
		SessionDuration: b.session.Duration(b.now()).Seconds(),
	}
}
