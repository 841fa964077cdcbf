package sampler

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilgrimsafe/tracker/internal/maptest"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

var epoch = time.Date(2026, 4, 14, 5, 30, 0, 0, time.UTC)

type harness struct {
	clock   *schedule.Manual
	sensor  *maptest.Sensor
	sampler *Sampler
	samples []core.LocationSample
	errs    []error
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{clock: schedule.NewManual(epoch), sensor: &maptest.Sensor{}}
	s, err := New(h.sensor, h.clock, cfg, rand.New(rand.NewPCG(1, 2)), nil)
	require.NoError(t, err)
	h.sampler = s
	s.Start(
		func(ls core.LocationSample) { h.samples = append(h.samples, ls) },
		func(err error) { h.errs = append(h.errs, err) },
	)
	return h
}

func fix(lat, lng float64) core.LocationSample {
	return core.LocationSample{Position: core.LatLng{Lat: lat, Lng: lng}}
}

func TestSampler_FirstFixAlwaysForwarded(t *testing.T) {
	h := newHarness(t, Config{})
	h.sensor.Emit(fix(23.1765, 75.7884))

	require.Len(t, h.samples, 1)
	assert.Equal(t, epoch.UnixMilli(), h.samples[0].TimestampMs)
	assert.GreaterOrEqual(t, h.sampler.Gap(), DefaultMinInterval)
	assert.LessOrEqual(t, h.sampler.Gap(), DefaultMaxInterval)
}

func TestSampler_ThrottleWindow(t *testing.T) {
	h := newHarness(t, Config{})

	// one raw fix every 100ms for 20s
	for i := 0; i < 200; i++ {
		h.sensor.Emit(fix(23.1765+float64(i)*1e-6, 75.7884))
		h.clock.Advance(100 * time.Millisecond)
	}

	require.GreaterOrEqual(t, len(h.samples), 4)
	require.LessOrEqual(t, len(h.samples), 7)
	for i := 1; i < len(h.samples); i++ {
		gap := time.Duration(h.samples[i].TimestampMs-h.samples[i-1].TimestampMs) * time.Millisecond
		assert.GreaterOrEqual(t, gap, DefaultMinInterval, "sample %d", i)
		// the next raw fix after the gap elapses is at most one raw period late
		assert.LessOrEqual(t, gap, DefaultMaxInterval+100*time.Millisecond, "sample %d", i)
	}
}

func TestSampler_IntervalIsRedrawn(t *testing.T) {
	h := newHarness(t, Config{MinInterval: time.Second, MaxInterval: 10 * time.Second})

	gaps := map[time.Duration]struct{}{}
	for i := 0; i < 600; i++ {
		before := len(h.samples)
		h.sensor.Emit(fix(23.1765, 75.7884))
		if len(h.samples) > before {
			gaps[h.sampler.Gap()] = struct{}{}
		}
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Greater(t, len(gaps), 1, "jitter must vary between forwards")
}

func TestSampler_FixedInterval(t *testing.T) {
	h := newHarness(t, Config{MinInterval: time.Second, MaxInterval: time.Second})

	h.sensor.Emit(fix(23.1765, 75.7884))
	h.clock.Advance(999 * time.Millisecond)
	h.sensor.Emit(fix(23.1766, 75.7884))
	assert.Len(t, h.samples, 1)

	h.clock.Advance(time.Millisecond)
	h.sensor.Emit(fix(23.1767, 75.7884))
	assert.Len(t, h.samples, 2)
}

func TestSampler_Heading(t *testing.T) {
	tests := []struct {
		name string
		in   *float64
		want *float64
	}{
		{"absent", nil, nil},
		{"nan", core.Heading(math.NaN()), nil},
		{"infinite", core.Heading(math.Inf(1)), nil},
		{"in range", core.Heading(45), core.Heading(45)},
		{"negative", core.Heading(-90), core.Heading(270)},
		{"wraps", core.Heading(725), core.Heading(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			s := fix(23.1765, 75.7884)
			s.HeadingDeg = tt.in
			h.sensor.Emit(s)

			require.Len(t, h.samples, 1)
			if tt.want == nil {
				assert.Nil(t, h.samples[0].HeadingDeg)
				return
			}
			require.NotNil(t, h.samples[0].HeadingDeg)
			assert.InDelta(t, *tt.want, *h.samples[0].HeadingDeg, 1e-9)
		})
	}
}

func TestSampler_InvalidFixDropped(t *testing.T) {
	h := newHarness(t, Config{})

	h.sensor.Emit(fix(math.NaN(), 75.7884))
	h.sensor.Emit(fix(23.1765, 181))

	assert.Empty(t, h.samples)
	require.Len(t, h.errs, 2)
	assert.True(t, errors.Is(h.errs[0], core.ErrInvalidPosition))

	// an invalid fix does not consume the first-forward slot
	h.sensor.Emit(fix(23.1765, 75.7884))
	assert.Len(t, h.samples, 1)
}

func TestSampler_SensorErrorContinues(t *testing.T) {
	h := newHarness(t, Config{})

	h.sensor.Fail(errors.New("permission denied"))
	require.Len(t, h.errs, 1)
	assert.True(t, errors.Is(h.errs[0], core.ErrSensorUnavailable))
	assert.Contains(t, h.errs[0].Error(), "permission denied")

	h.sensor.Emit(fix(23.1765, 75.7884))
	assert.Len(t, h.samples, 1)
}

func TestSampler_KeepsSensorTimestamp(t *testing.T) {
	h := newHarness(t, Config{})
	s := fix(23.1765, 75.7884)
	s.TimestampMs = 1_700_000_000_000
	h.sensor.Emit(s)

	require.Len(t, h.samples, 1)
	assert.Equal(t, int64(1_700_000_000_000), h.samples[0].TimestampMs)
}

func TestSampler_StopOnce(t *testing.T) {
	h := newHarness(t, Config{})
	require.True(t, h.sampler.Running())

	h.sampler.Stop()
	h.sampler.Stop()

	assert.Equal(t, 1, h.sensor.Unsubscribes)
	assert.False(t, h.sampler.Running())
	h.sensor.Emit(fix(23.1765, 75.7884))
	assert.Empty(t, h.samples)
}

func TestNew_InvalidInterval(t *testing.T) {
	_, err := New(&maptest.Sensor{}, schedule.NewManual(epoch),
		Config{MinInterval: 5 * time.Second, MaxInterval: time.Second}, nil, nil)
	assert.Error(t, err)
}
