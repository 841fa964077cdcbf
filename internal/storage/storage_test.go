package storage_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/config"
	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/internal/storage"
	"github.com/pilgrimsafe/tracker/internal/storage/memory"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIsUploadable(t *testing.T) {
	var b storage.Backend = memory.New(config.MemoryConfig{OutputDir: t.TempDir()})

	u, ok := b.(storage.Uploadable)
	assert.True(t, ok)
	assert.Empty(t, u.GetExportedFilePath())
}

type failingBackend struct {
	storage.Backend
	calls int
}

func (f *failingBackend) RecordSample(*core.EntitySample) error { f.calls++; return assert.AnError }
func (f *failingBackend) RecordRoute(*core.RouteRecord) error   { f.calls++; return assert.AnError }
func (f *failingBackend) RecordHint(*core.HintRecord) error     { f.calls++; return assert.AnError }

func TestRecorder(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(&core.Session{ID: "s-1", StartTime: time.Now()}))
	r := storage.NewRecorder(b, nil)

	r.RecordSample(core.EntitySample{SessionID: "s-1", EntityID: "self", Kind: core.KindSelf,
		Sample: core.LocationSample{Position: core.LatLng{Lat: 23.2595, Lng: 77.4118}, TimestampMs: 1000}})
	r.RecordSample(core.EntitySample{SessionID: "s-1", EntityID: "self", Kind: core.KindSelf,
		Sample: core.LocationSample{Position: core.LatLng{Lat: 23.2596, Lng: 77.4118}, TimestampMs: 5000}})
	r.RecordRoute("s-1", core.RouteOverlay{OriginID: "self", DestinationID: "m-1", DistanceMeters: 120})
	r.RecordHint("s-1", core.CenterHint{ID: "sos-1", Position: core.LatLng{Lat: 23.26, Lng: 77.41}})

	tracks, routes, hints := b.Counts()
	assert.Equal(t, 1, tracks)
	assert.Equal(t, 1, routes)
	assert.Equal(t, 1, hints)

	track, ok := b.GetTrack("self")
	require.True(t, ok)
	assert.Len(t, track.Samples, 2)
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	b := &failingBackend{}
	r := storage.NewRecorder(b, nil)

	assert.NotPanics(t, func() {
		r.RecordSample(core.EntitySample{EntityID: "m-1"})
		r.RecordRoute("s-1", core.RouteOverlay{})
		r.RecordHint("s-1", core.CenterHint{ID: "h"})
	})
	assert.Equal(t, 3, b.calls)
}

func TestQueued(t *testing.T) {
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(&core.Session{ID: "s-1", StartTime: time.Now()}))
	d, err := dispatcher.New(slog.Default(), 0)
	require.NoError(t, err)

	q := storage.NewRecorder(b, nil).Queue(d, 16)
	assert.True(t, d.HasHandler(storage.CmdRecordSample))

	for ts := int64(1000); ts <= 3000; ts += 1000 {
		q.RecordSample(core.EntitySample{SessionID: "s-1", EntityID: "m-2", Kind: core.KindMember,
			Sample: core.LocationSample{Position: core.LatLng{Lat: 21.4225, Lng: 39.8262}, TimestampMs: ts}})
	}
	q.RecordRoute("s-1", core.RouteOverlay{OriginID: "self", DestinationID: "m-2"})
	q.RecordHint("s-1", core.CenterHint{ID: "gate-4"})
	d.Close()

	tracks, routes, hints := b.Counts()
	assert.Equal(t, []int{1, 1, 1}, []int{tracks, routes, hints})
	track, ok := b.GetTrack("m-2")
	require.True(t, ok)
	assert.Len(t, track.Samples, 3)

	assert.NotPanics(t, func() { q.RecordHint("s-1", core.CenterHint{ID: "late"}) })
	_, _, hints = b.Counts()
	assert.Equal(t, 1, hints)
}
