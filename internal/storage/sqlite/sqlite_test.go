package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/logging"
	"github.com/pilgrimsafe/tracker/internal/storage"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestEndSession_DumpsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.db")
	b, err := New(Config{DumpPath: path, MemoryName: t.Name()}, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer func() { require.NoError(t, b.Close()) }()

	require.NoError(t, b.StartSession(&core.Session{ID: "sqlite-session", StartTime: time.Now()}))
	require.NoError(t, b.RecordSample(&core.EntitySample{
		EntityID: "m-1",
		Kind:     core.KindMember,
		Sample:   core.LocationSample{Position: core.LatLng{Lat: 23.26, Lng: 77.41}, TimestampMs: 5},
	}))
	require.NoError(t, b.EndSession())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, path, b.GetExportedFilePath())
}

func TestDump_NoPath(t *testing.T) {
	b, err := New(Config{MemoryName: t.Name()}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	assert.NoError(t, b.Dump())
}

func TestDumpLoop_Periodic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 20 * time.Millisecond, MemoryName: t.Name()}, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
