// Package sampler throttles the raw device location stream into position
// updates spaced by a randomized interval.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

const instrumentationName = "github.com/pilgrimsafe/tracker/internal/sampler"

// Default throttle bounds.
const (
	DefaultMinInterval = 3 * time.Second
	DefaultMaxInterval = 5 * time.Second
)

// Config bounds the forwarding interval.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Sampler forwards at most one location fix per interval. The interval is
// drawn uniformly from [MinInterval, MaxInterval] after every forwarded
// fix; the first fix always passes.
type Sampler struct {
	sensor mapapi.LocationSensor
	clock  schedule.Scheduler
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	onSample func(core.LocationSample)
	onError  func(error)

	unsubscribe  func()
	running      bool
	hasForwarded bool
	lastForward  time.Time
	gap          time.Duration

	forwarded metric.Int64Counter
	throttled metric.Int64Counter
}

// New creates a Sampler. A nil rng uses a randomly seeded source.
func New(sensor mapapi.LocationSensor, clock schedule.Scheduler, cfg Config, rng *rand.Rand, logger *slog.Logger) (*Sampler, error) {
	if cfg.MinInterval <= 0 && cfg.MaxInterval <= 0 {
		cfg.MinInterval, cfg.MaxInterval = DefaultMinInterval, DefaultMaxInterval
	}
	if cfg.MinInterval < 0 || cfg.MaxInterval < cfg.MinInterval {
		return nil, fmt.Errorf("invalid sampler interval [%s, %s]", cfg.MinInterval, cfg.MaxInterval)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sampler{sensor: sensor, clock: clock, cfg: cfg, rng: rng, logger: logger}

	m := otel.Meter(instrumentationName)
	var err error
	s.forwarded, err = m.Int64Counter(
		"sampler.samples.forwarded",
		metric.WithDescription("Location fixes forwarded to the map"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating forwarded counter: %w", err)
	}
	s.throttled, err = m.Int64Counter(
		"sampler.samples.throttled",
		metric.WithDescription("Location fixes dropped by the throttle"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating throttled counter: %w", err)
	}
	return s, nil
}

// Start subscribes to the sensor. onSample receives forwarded fixes;
// onError receives sensor failures wrapped with core.ErrSensorUnavailable
// and malformed fixes wrapped with core.ErrInvalidPosition. Sampling
// continues after either.
func (s *Sampler) Start(onSample func(core.LocationSample), onError func(error)) {
	if s.running {
		return
	}
	s.onSample = onSample
	s.onError = onError
	s.running = true
	s.unsubscribe = s.sensor.Subscribe(s.handleFix, s.handleError)
}

// Stop unsubscribes from the sensor. Only the first call has an effect.
func (s *Sampler) Stop() {
	if !s.running {
		return
	}
	s.running = false
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Running reports whether the sampler is subscribed.
func (s *Sampler) Running() bool {
	return s.running
}

// Gap returns the interval currently required before the next forward.
func (s *Sampler) Gap() time.Duration {
	return s.gap
}

func (s *Sampler) handleFix(raw core.LocationSample) {
	if !s.running {
		return
	}
	if !raw.Position.Valid() {
		s.report(fmt.Errorf("fix %.6f,%.6f: %w", raw.Position.Lat, raw.Position.Lng, core.ErrInvalidPosition))
		return
	}

	now := s.clock.Now()
	if s.hasForwarded && now.Sub(s.lastForward) < s.gap {
		s.throttled.Add(context.Background(), 1)
		return
	}

	sample := core.LocationSample{
		Position:    raw.Position,
		HeadingDeg:  geo.NormalizeHeading(raw.HeadingDeg),
		TimestampMs: raw.TimestampMs,
	}
	if sample.TimestampMs == 0 {
		sample.TimestampMs = now.UnixMilli()
	}

	s.hasForwarded = true
	s.lastForward = now
	s.gap = s.drawGap()
	s.forwarded.Add(context.Background(), 1)

	if s.onSample != nil {
		s.onSample(sample)
	}
}

func (s *Sampler) handleError(err error) {
	if !s.running {
		return
	}
	s.report(fmt.Errorf("%w: %w", core.ErrSensorUnavailable, err))
}

func (s *Sampler) report(err error) {
	s.logger.Warn("location fix rejected", "error", err)
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Sampler) drawGap() time.Duration {
	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.rng.Int64N(int64(span)+1))
}
