package hint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

var gate = core.LatLng{Lat: 23.1793, Lng: 75.7849}

func TestBus_PublishAssignsID(t *testing.T) {
	b := NewBus(4)

	h, err := b.Publish(core.CenterHint{Position: gate})
	require.NoError(t, err)
	_, err = uuid.Parse(h.ID)
	assert.NoError(t, err)

	kept, err := b.Publish(core.CenterHint{ID: "sos-17", Position: gate})
	require.NoError(t, err)
	assert.Equal(t, "sos-17", kept.ID)
}

func TestBus_PublishRejectsInvalid(t *testing.T) {
	b := NewBus(4)
	_, err := b.Publish(core.CenterHint{ID: "x", Position: core.LatLng{Lat: 123}})
	assert.True(t, errors.Is(err, core.ErrInvalidPosition))
}

func TestBus_Full(t *testing.T) {
	b := NewBus(1)
	_, err := b.Publish(core.CenterHint{ID: "a", Position: gate})
	require.NoError(t, err)
	_, err = b.Publish(core.CenterHint{ID: "b", Position: gate})
	assert.ErrorIs(t, err, ErrBusFull)
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := NewBus(2)
	b.Close()
	b.Close()
	_, err := b.Publish(core.CenterHint{Position: core.LatLng{Lat: 23.26, Lng: 77.41}})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_RunDeliversInOrder(t *testing.T) {
	b := NewBus(8)
	for _, id := range []string{"a", "b", "c"} {
		_, err := b.Publish(core.CenterHint{ID: id, Position: gate})
		require.NoError(t, err)
	}
	b.Close()

	var got []string
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), func(h core.CenterHint) { got = append(got, h.ID) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_RunStopsOnCancel(t *testing.T) {
	b := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, func(core.CenterHint) {})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDedupe(t *testing.T) {
	d := NewDedupe(2)

	assert.True(t, d.First("a"))
	assert.False(t, d.First("a"))
	assert.True(t, d.First("b"))
	assert.True(t, d.First("c"), "evicts a")
	assert.True(t, d.First("a"), "a was forgotten")
	assert.False(t, d.First("c"))
}
