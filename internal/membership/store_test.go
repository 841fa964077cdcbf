package membership

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queuePoster collects posted functions; run plays the owner loop.
type queuePoster struct {
	fns []func()
}

func (p *queuePoster) Post(fn func()) error {
	p.fns = append(p.fns, fn)
	return nil
}

func (p *queuePoster) run() {
	fns := p.fns
	p.fns = nil
	for _, fn := range fns {
		fn()
	}
}

var (
	ram  = core.MemberUpdate{ID: "m-1", Name: "Ram Sharma", Position: core.LatLng{Lat: 23.2599, Lng: 77.4126}, Status: core.StatusSafe, TimestampMs: 1000}
	sita = core.MemberUpdate{ID: "m-2", Name: "Sita Devi", Position: core.LatLng{Lat: 23.2590, Lng: 77.4120}, Status: core.StatusSafe, TimestampMs: 1000}
)

func TestMembers_SortedSnapshot(t *testing.T) {
	s := NewStore(&queuePoster{}, nil, sita, ram)
	members := s.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "m-1", members[0].ID)
	assert.Equal(t, "m-2", members[1].ID)
}

func TestUpsert_NotifiesOnLoop(t *testing.T) {
	poster := &queuePoster{}
	s := NewStore(poster, nil, ram)

	var got [][]core.MemberUpdate
	unsubscribe := s.Subscribe(func(m []core.MemberUpdate) { got = append(got, m) })

	moved := ram
	moved.Position = core.LatLng{Lat: 23.26, Lng: 77.413}
	moved.TimestampMs = 2000
	require.NoError(t, s.Upsert(moved))
	assert.Empty(t, got, "callbacks only run on the loop")

	poster.run()
	require.Len(t, got, 1)
	assert.Equal(t, moved.Position, got[0][0].Position)

	unsubscribe()
	require.NoError(t, s.Upsert(sita))
	poster.run()
	assert.Len(t, got, 1)
}

func TestNotify_OlderRosterNeverFollowsNewer(t *testing.T) {
	poster := &queuePoster{}
	s := NewStore(poster, nil, ram, sita)
	s.now = func() time.Time { return time.UnixMilli(1000) }

	var got [][]core.MemberUpdate
	s.Subscribe(func(m []core.MemberUpdate) { got = append(got, m) })

	require.NoError(t, s.SetStatus("m-1", core.StatusWarning))
	require.True(t, s.Remove("m-2"))
	require.NoError(t, s.SetStatus("m-1", core.StatusDanger))

	// writers on different goroutines may post in any order
	slices.Reverse(poster.fns)
	poster.run()

	require.Len(t, got, 1, "older rosters arriving late are skipped")
	require.Len(t, got[0], 1)
	assert.Equal(t, core.StatusDanger, got[0][0].Status)

	// later changes are still delivered
	require.NoError(t, s.Upsert(sita))
	poster.run()
	require.Len(t, got, 2)
	assert.Len(t, got[1], 2)
}

func TestUpsert_Validation(t *testing.T) {
	s := NewStore(&queuePoster{}, nil, ram)

	stale := ram
	stale.TimestampMs = 999
	assert.ErrorIs(t, s.Upsert(stale), ErrStale)
	assert.Error(t, s.Upsert(core.MemberUpdate{}))

	noStatus := core.MemberUpdate{ID: "m-3", Name: "Arjun", TimestampMs: 5}
	require.NoError(t, s.Upsert(noStatus))
	got, ok := s.Get("m-3")
	require.True(t, ok)
	assert.Equal(t, core.StatusSafe, got.Status)
}

func TestSetStatusAndRemove(t *testing.T) {
	s := NewStore(&queuePoster{}, nil, ram)
	s.now = func() time.Time { return time.UnixMilli(5000) }

	require.NoError(t, s.SetStatus("m-1", core.StatusDanger))
	got, _ := s.Get("m-1")
	assert.Equal(t, core.StatusDanger, got.Status)
	assert.Equal(t, int64(5000), got.TimestampMs)

	assert.ErrorIs(t, s.SetStatus("nobody", core.StatusSafe), core.ErrUnknownMember)

	assert.True(t, s.Remove("m-1"))
	assert.False(t, s.Remove("m-1"))
	assert.Empty(t, s.Members())
}

func TestDrift_BoundedAndMonotonic(t *testing.T) {
	poster := &queuePoster{}
	s := NewStore(poster, nil, ram, sita)
	s.now = func() time.Time { return time.UnixMilli(500) } // behind the stored timestamps
	calls := 0
	s.Subscribe(func([]core.MemberUpdate) { calls++ })

	s.Drift(15, rand.New(rand.NewPCG(3, 4)))
	poster.run()

	assert.Equal(t, 1, calls)
	for _, m := range s.Members() {
		orig := ram
		if m.ID == sita.ID {
			orig = sita
		}
		assert.LessOrEqual(t, geo.Haversine(orig.Position, m.Position), 15.0+1e-6)
		assert.Equal(t, int64(1000), m.TimestampMs)
		assert.NotNil(t, m.HeadingDeg)
	}
}

func TestStartDrift_Disabled(t *testing.T) {
	s := NewStore(&queuePoster{}, nil, ram)
	stop := s.StartDrift(DriftConfig{}, nil)
	stop()
	got, _ := s.Get("m-1")
	assert.Equal(t, ram.Position, got.Position)
}
