package gormstorage

import (
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/database"
	"github.com/pilgrimsafe/tracker/internal/logging"
	"github.com/pilgrimsafe/tracker/internal/model"
	"github.com/pilgrimsafe/tracker/internal/storage"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

// newTestBackend creates a Backend with no DB (queue-only mode for unit testing).
func newTestBackend() *Backend {
	return New(Dependencies{
		LogManager:    logging.NewSlogManager(),
		FlushInterval: time.Hour,
	})
}

func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	b := New(Dependencies{
		DB:            db,
		LogManager:    logging.NewSlogManager(),
		FlushInterval: time.Hour,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSession() *core.Session {
	return &core.Session{
		ID:        "4d7c9f0e-2b1a-4e55-8f1c-2f0b7d1e9a01",
		StartTime: time.Date(2026, 4, 12, 5, 30, 0, 0, time.UTC),
		GroupName: "Family Group",
	}
}

func testSample(id string, ts int64) *core.EntitySample {
	return &core.EntitySample{
		SessionID: "s",
		EntityID:  id,
		Kind:      core.KindMember,
		Sample: core.LocationSample{
			Position:    core.LatLng{Lat: 23.2599, Lng: 77.4126},
			HeadingDeg:  core.Heading(10),
			TimestampMs: ts,
		},
	}
}

func TestInitClose(t *testing.T) {
	b := newTestBackend()

	err := b.Init()
	require.NoError(t, err)
	require.NotNil(t, b.queues)
	require.NotNil(t, b.stopChan)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestRecord_QueuesWithoutDB(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordSample(testSample("m-1", 1)))
	require.NoError(t, b.RecordRoute(&core.RouteRecord{}))
	require.NoError(t, b.RecordHint(&core.HintRecord{}))

	assert.Equal(t, 1, b.queues.Samples.Len())
	assert.Equal(t, 1, b.queues.Routes.Len())
	assert.Equal(t, 1, b.queues.Hints.Len())
	assert.Equal(t, 3, b.Pending())

	// no DB: flush is a no-op and keeps the queue
	require.NoError(t, b.Flush())
	assert.Equal(t, 3, b.Pending())
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := newTestBackend()
	require.NoError(t, b.Init())
	defer b.Close()

	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestFlush_KeepsRecordsUntilSessionExists(t *testing.T) {
	b := newSQLiteBackend(t)

	require.NoError(t, b.RecordSample(testSample("m-1", 1)))
	require.NoError(t, b.Flush())
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.Flush())
	assert.Zero(t, b.Pending())

	samples, err := b.SessionSamples()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, testSession().ID, samples[0].SessionID)
}

func TestSQLite_RoundTrip(t *testing.T) {
	b := newSQLiteBackend(t)
	session := testSession()
	require.NoError(t, b.StartSession(session))

	require.NoError(t, b.RecordSample(testSample("m-2", 2000)))
	require.NoError(t, b.RecordSample(testSample("m-1", 1000)))
	require.NoError(t, b.RecordRoute(&core.RouteRecord{
		Time: session.StartTime,
		Overlay: core.RouteOverlay{
			OriginID:       core.SelfID,
			DestinationID:  "m-1",
			Polyline:       []core.LatLng{{Lat: 23.2599, Lng: 77.4126}, {Lat: 23.2590, Lng: 77.4120}},
			DistanceMeters: 118,
			EtaSeconds:     90,
		},
	}))
	require.NoError(t, b.RecordHint(&core.HintRecord{
		Time: session.StartTime,
		Hint: core.CenterHint{ID: "sos-1", Position: core.LatLng{Lat: 23.26, Lng: 77.41}},
	}))

	require.NoError(t, b.EndSession())
	assert.Zero(t, b.Pending())

	samples, err := b.SessionSamples()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "m-1", samples[0].EntityID)
	assert.Equal(t, core.LatLng{Lat: 23.2599, Lng: 77.4126}, samples[0].Sample.Position)
	require.NotNil(t, samples[0].Sample.HeadingDeg)
	assert.Equal(t, 10.0, *samples[0].Sample.HeadingDeg)

	routes, err := b.SessionRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Len(t, routes[0].Overlay.Polyline, 2)
	assert.Equal(t, 118.0, routes[0].Overlay.DistanceMeters)

	var hints []model.HintEvent
	require.NoError(t, b.DB().Find(&hints).Error)
	require.Len(t, hints, 1)
	assert.Equal(t, "sos-1", hints[0].HintID)

	var stored model.Session
	require.NoError(t, b.DB().Where("session_uuid = ?", session.ID).First(&stored).Error)
	assert.True(t, stored.EndTime.Valid)
}

func TestStartSession_Resumes(t *testing.T) {
	b := newSQLiteBackend(t)
	require.NoError(t, b.StartSession(testSession()))
	first := b.sessionID.Load()

	require.NoError(t, b.StartSession(testSession()))
	assert.Equal(t, first, b.sessionID.Load())
}

func TestSessionSamples_NoSession(t *testing.T) {
	b := newSQLiteBackend(t)
	_, err := b.SessionSamples()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestQueueLimit(t *testing.T) {
	b := New(Dependencies{FlushInterval: time.Hour, QueueLimit: 2})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordSample(testSample("m-1", 1000)))
	require.NoError(t, b.RecordSample(testSample("m-1", 2000)))
	assert.ErrorContains(t, b.RecordSample(testSample("m-1", 3000)), "1 oldest dropped")

	items := b.queues.Samples.Drain()
	require.Len(t, items, 2)
	assert.Equal(t, int64(2000), items[0].TimestampMs)
	assert.Equal(t, uint64(1), b.queues.Samples.Dropped())
}
