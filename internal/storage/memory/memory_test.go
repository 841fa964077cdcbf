package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 4, 12, 5, 30, 0, 0, time.UTC)

func newSession() *core.Session {
	return &core.Session{
		ID:        "session-1",
		StartTime: sessionStart,
		GroupName: "Family Group",
		Device:    "pixel",
	}
}

func sample(id string, kind core.EntityKind, lat, lng float64, ts int64, heading *float64) *core.EntitySample {
	return &core.EntitySample{
		SessionID: "session-1",
		EntityID:  id,
		Kind:      kind,
		Sample: core.LocationSample{
			Position:    core.LatLng{Lat: lat, Lng: lng},
			HeadingDeg:  heading,
			TimestampMs: ts,
		},
	}
}

func TestRecordSample_GroupsByEntity(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(newSession()))

	require.NoError(t, b.RecordSample(sample(core.SelfID, core.KindSelf, 23.2599, 77.4126, 1000, core.Heading(90))))
	require.NoError(t, b.RecordSample(sample("m-1", core.KindMember, 23.2590, 77.4120, 1500, nil)))
	require.NoError(t, b.RecordSample(sample(core.SelfID, core.KindSelf, 23.2600, 77.4127, 5000, nil)))

	track, ok := b.GetTrack(core.SelfID)
	require.True(t, ok)
	assert.Equal(t, core.KindSelf, track.Kind)
	require.Len(t, track.Samples, 2)
	assert.Equal(t, int64(5000), track.Samples[1].TimestampMs)

	tracks, routes, hints := b.Counts()
	assert.Equal(t, 2, tracks)
	assert.Zero(t, routes)
	assert.Zero(t, hints)

	_, ok = b.GetTrack("nobody")
	assert.False(t, ok)
}

func TestGetTrack_ReturnsCopy(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.RecordSample(sample("m-1", core.KindMember, 1, 1, 1, nil)))

	track, _ := b.GetTrack("m-1")
	track.Samples[0].TimestampMs = 99

	again, _ := b.GetTrack("m-1")
	assert.Equal(t, int64(1), again.Samples[0].TimestampMs)
}

func TestStartSession_Resets(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(newSession()))
	require.NoError(t, b.RecordSample(sample("m-1", core.KindMember, 1, 1, 1, nil)))
	require.NoError(t, b.RecordRoute(&core.RouteRecord{SessionID: "session-1"}))
	require.NoError(t, b.RecordHint(&core.HintRecord{SessionID: "session-1"}))

	require.NoError(t, b.StartSession(newSession()))

	tracks, routes, hints := b.Counts()
	assert.Zero(t, tracks)
	assert.Zero(t, routes)
	assert.Zero(t, hints)
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestEndSession_ExportsGzip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	b.now = func() time.Time { return sessionStart.Add(90 * time.Second) }

	require.NoError(t, b.StartSession(newSession()))
	require.NoError(t, b.RecordSample(sample(core.SelfID, core.KindSelf, 23.2599, 77.4126, 1000, core.Heading(45))))
	require.NoError(t, b.RecordSample(sample("m-1", core.KindMember, 23.2590, 77.4120, 1500, nil)))
	require.NoError(t, b.RecordRoute(&core.RouteRecord{
		SessionID: "session-1",
		Time:      sessionStart.Add(time.Second),
		Overlay: core.RouteOverlay{
			OriginID:       core.SelfID,
			DestinationID:  "m-1",
			Polyline:       []core.LatLng{{Lat: 23.2599, Lng: 77.4126}, {Lat: 23.2590, Lng: 77.4120}},
			DistanceMeters: 118,
			EtaSeconds:     90,
		},
	}))
	require.NoError(t, b.RecordHint(&core.HintRecord{
		SessionID: "session-1",
		Time:      sessionStart.Add(2 * time.Second),
		Hint:      core.CenterHint{ID: "sos-1", Position: core.LatLng{Lat: 23.26, Lng: 77.41}, Label: "SOS"},
	}))

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "Family_Group_20260412_053000.json.gz"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))

	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, "session-1", export.SessionID)
	assert.Equal(t, "2026-04-12T05:31:30Z", export.EndTime)
	assert.InDelta(t, 90, export.DurationSeconds, 1e-9)

	require.Len(t, export.Tracks, 2)
	assert.Equal(t, "m-1", export.Tracks[0].EntityID)
	assert.Equal(t, "member", export.Tracks[0].Kind)
	assert.Nil(t, export.Tracks[0].Positions[0][2])
	assert.Equal(t, "self", export.Tracks[1].Kind)
	assert.Equal(t, []any{23.2599, 77.4126, 45.0, 1000.0}, export.Tracks[1].Positions[0])

	require.Len(t, export.Routes, 1)
	assert.Equal(t, "m-1", export.Routes[0].DestinationID)
	assert.Len(t, export.Routes[0].Polyline, 2)

	require.Len(t, export.Hints, 1)
	assert.Equal(t, "SOS", export.Hints[0].Label)

	meta := b.GetExportMetadata()
	assert.Equal(t, "session-1", meta.SessionID)
	assert.Equal(t, "Family Group", meta.GroupName)
	assert.InDelta(t, 90, meta.SessionDuration, 1e-9)
}

func TestEndSession_PlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})

	s := newSession()
	s.GroupName = "a/b: c"
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, "a_b__c_20260412_053000.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var export SessionExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Empty(t, export.Tracks)
	assert.NotNil(t, export.Tracks)
}

func TestGetExportMetadata_NoSession(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.Equal(t, core.UploadMetadata{}, b.GetExportMetadata())
	assert.Empty(t, b.GetExportedFilePath())
}
