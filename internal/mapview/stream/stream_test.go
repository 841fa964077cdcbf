package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/wsconn/wstest"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
	"github.com/pilgrimsafe/tracker/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlinePoster runs posted functions immediately, counting them.
type inlinePoster struct {
	mu     sync.Mutex
	posted int
	fail   bool
}

func (p *inlinePoster) Post(fn func()) error {
	p.mu.Lock()
	if p.fail {
		p.mu.Unlock()
		return errors.New("stopped")
	}
	p.posted++
	p.mu.Unlock()
	fn()
	return nil
}

func newTestMap(t *testing.T) (*Map, *wstest.Server, *inlinePoster) {
	t.Helper()
	srv := wstest.NewServer(t)
	poster := &inlinePoster{}
	m := New(Config{URL: srv.WSURL(), Secret: "k"}, poster, nil)
	m.Start()
	t.Cleanup(func() { _ = m.Close() })
	require.True(t, m.Connected())
	return m, srv, poster
}

func waitTypes(t *testing.T, srv *wstest.Server, n int) []string {
	t.Helper()
	require.True(t, wstest.WaitFor(t, time.Second, func() bool { return len(srv.Messages()) >= n }),
		"got %v", srv.Types())
	return srv.Types()
}

func TestStart_SendsEmptyScene(t *testing.T) {
	_, srv, _ := newTestMap(t)
	assert.Equal(t, []string{streaming.TypeResetScene}, waitTypes(t, srv, 1))
	assert.Equal(t, "k", srv.Secret(0))
}

func TestMarkerCommands(t *testing.T) {
	m, srv, _ := newTestMap(t)
	waitTypes(t, srv, 1)
	srv.Reset()

	h := m.AddMarker(core.LatLng{Lat: 23.26, Lng: 77.41}, mapapi.Icon{Kind: core.KindMember, Label: "Ram"}, nil)
	h.SetPosition(core.LatLng{Lat: 23.27, Lng: 77.42})
	h.SetIcon(mapapi.Icon{Kind: core.KindMember, Status: core.StatusDanger})
	h.Remove()
	h.Remove()
	h.SetPosition(core.LatLng{})

	types := waitTypes(t, srv, 4)
	assert.Equal(t, []string{
		streaming.TypeAddMarker,
		streaming.TypeSetMarkerPosition,
		streaming.TypeSetMarkerIcon,
		streaming.TypeRemoveMarker,
	}, types)

	var add streaming.MarkerPayload
	require.NoError(t, json.Unmarshal(srv.Messages()[0].Payload, &add))
	assert.Equal(t, "marker-1", add.ID)
	require.NotNil(t, add.Icon)
	assert.Equal(t, "Ram", add.Icon.Label)
}

func TestViewAndOverlayCommands(t *testing.T) {
	m, srv, _ := newTestMap(t)
	waitTypes(t, srv, 1)
	srv.Reset()

	line := m.AddPolyline([]core.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, mapapi.LineActive)
	line.SetStyle(mapapi.LineAlternate)
	line.SetPath([]core.LatLng{{Lat: 1, Lng: 1}})
	line.Remove()
	pop := m.OpenPopup(core.LatLng{Lat: 1, Lng: 1}, "Ram Sharma")
	pop.SetContent("Sita Devi")
	pop.SetPosition(core.LatLng{Lat: 2, Lng: 2})
	pop.Close()
	m.SetView(core.LatLng{Lat: 1, Lng: 1}, 15)
	m.FlyTo(core.LatLng{Lat: 1, Lng: 1}, 17)
	m.FitBounds(core.Bounds{NorthEast: core.LatLng{Lat: 2, Lng: 2}}, 48)
	m.PanTo(core.LatLng{Lat: 3, Lng: 3})

	types := waitTypes(t, srv, 12)
	assert.Equal(t, []string{
		streaming.TypeAddPolyline,
		streaming.TypeSetPolylineStyle,
		streaming.TypeSetPolylinePath,
		streaming.TypeRemovePolyline,
		streaming.TypeOpenPopup,
		streaming.TypeSetPopupContent,
		streaming.TypeSetPopupPosition,
		streaming.TypeClosePopup,
		streaming.TypeSetView,
		streaming.TypeFlyTo,
		streaming.TypeFitBounds,
		streaming.TypePanTo,
	}, types)

	var pan streaming.ViewPayload
	require.NoError(t, json.Unmarshal(srv.Messages()[11].Payload, &pan))
	assert.Nil(t, pan.Zoom)
}

func TestScene_ReplaysLiveStateInOrder(t *testing.T) {
	m, _, _ := newTestMap(t)

	removed := m.AddMarker(core.LatLng{Lat: 1, Lng: 1}, mapapi.Icon{}, nil)
	m.AddPolyline([]core.LatLng{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, mapapi.LineActive)
	kept := m.AddMarker(core.LatLng{Lat: 2, Lng: 2}, mapapi.Icon{}, nil)
	kept.SetPosition(core.LatLng{Lat: 5, Lng: 5})
	removed.Remove()
	m.FlyTo(core.LatLng{Lat: 5, Lng: 5}, 17)

	var types []string
	var movedTo core.LatLng
	for _, data := range m.scene() {
		var env streaming.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		types = append(types, env.Type)
		if env.Type == streaming.TypeAddMarker {
			var p streaming.MarkerPayload
			require.NoError(t, json.Unmarshal(env.Payload, &p))
			movedTo = *p.Position
		}
	}
	assert.Equal(t, []string{
		streaming.TypeResetScene,
		streaming.TypeAddPolyline,
		streaming.TypeAddMarker,
		streaming.TypeFlyTo,
	}, types)
	assert.Equal(t, core.LatLng{Lat: 5, Lng: 5}, movedTo)
}

func TestMarkerClick_PostedToLoop(t *testing.T) {
	m, srv, poster := newTestMap(t)

	clicked := make(chan struct{}, 1)
	m.AddMarker(core.LatLng{Lat: 1, Lng: 1}, mapapi.Icon{}, func() { clicked <- struct{}{} })
	require.NoError(t, srv.Push(streaming.TypeMarkerClick, streaming.MarkerClickPayload{ID: "marker-1"}))

	select {
	case <-clicked:
	case <-time.After(time.Second):
		t.Fatal("click not delivered")
	}
	poster.mu.Lock()
	assert.Equal(t, 1, poster.posted)
	poster.mu.Unlock()
}

func TestMarkerClick_UnknownOrRemoved(t *testing.T) {
	m, srv, poster := newTestMap(t)

	h := m.AddMarker(core.LatLng{Lat: 1, Lng: 1}, mapapi.Icon{}, func() { t.Error("removed marker clicked") })
	h.Remove()
	require.NoError(t, srv.Push(streaming.TypeMarkerClick, streaming.MarkerClickPayload{ID: "marker-1"}))
	require.NoError(t, srv.Push(streaming.TypeMarkerClick, streaming.MarkerClickPayload{ID: "marker-99"}))
	require.NoError(t, srv.Push(streaming.TypeFlyTo, nil))

	time.Sleep(50 * time.Millisecond)
	poster.mu.Lock()
	assert.Zero(t, poster.posted)
	poster.mu.Unlock()
}

func TestStart_RendererDown(t *testing.T) {
	m := New(Config{URL: "ws://127.0.0.1:1/map"}, &inlinePoster{}, nil)
	m.Start()
	defer m.Close()

	assert.False(t, m.Connected())
	// drawing while disconnected only queues
	m.AddMarker(core.LatLng{}, mapapi.Icon{}, nil).Remove()
}
