package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 4, 14, 5, 30, 0, 0, time.UTC)

func TestManual_AfterFuncRunsWhenDue(t *testing.T) {
	m := NewManual(epoch)
	fired := 0
	m.AfterFunc(100*time.Millisecond, func() { fired++ })

	m.Advance(99 * time.Millisecond)
	assert.Equal(t, 0, fired)

	m.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)

	m.Advance(time.Second)
	assert.Equal(t, 1, fired, "timer must fire once")
}

func TestManual_Cancel(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	cancel := m.AfterFunc(10*time.Millisecond, func() { fired = true })
	cancel()

	m.Advance(time.Second)
	assert.False(t, fired)
	assert.Zero(t, m.Pending())
}

func TestManual_OrderAndNow(t *testing.T) {
	m := NewManual(epoch)
	var order []string
	var seen []time.Time

	m.AfterFunc(30*time.Millisecond, func() { order = append(order, "b"); seen = append(seen, m.Now()) })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "a"); seen = append(seen, m.Now()) })

	m.Advance(50 * time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, []time.Time{epoch.Add(10 * time.Millisecond), epoch.Add(30 * time.Millisecond)}, seen)
	assert.Equal(t, epoch.Add(50*time.Millisecond), m.Now())
}

func TestManual_FramesChain(t *testing.T) {
	m := NewManual(epoch)
	frames := 0
	var tick func(time.Time)
	tick = func(time.Time) {
		frames++
		m.RequestFrame(tick)
	}
	m.RequestFrame(tick)

	m.Advance(10 * DefaultFrameInterval)
	assert.Equal(t, 10, frames)
}
