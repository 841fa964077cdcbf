// Package sensor provides a simulated walking location sensor for running
// the tracker without device hardware.
package sensor

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// arriveMeters is how close counts as reaching a waypoint.
const arriveMeters = 2.0

// Config describes the simulated walk.
type Config struct {
	Interval     time.Duration
	Start        core.LatLng
	SpeedMps     float64
	JitterMeters float64
	// Waypoints are visited in order, then the walk loops back to Start.
	Waypoints []core.LatLng
}

// Simulator walks a loop through its waypoints and reports a fix every
// Interval. Callbacks are posted to the owner loop.
type Simulator struct {
	cfg    Config
	poster schedule.Poster
	logger *slog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	pos    core.LatLng
	target int
	now    func() time.Time
}

var _ mapapi.LocationSensor = (*Simulator)(nil)

// NewSimulator creates a Simulator. A nil rng uses a randomly seeded source.
func NewSimulator(cfg Config, poster schedule.Poster, rng *rand.Rand, logger *slog.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:    cfg,
		poster: poster,
		logger: logger,
		rng:    rng,
		pos:    cfg.Start,
		now:    time.Now,
	}
}

// route is the closed loop walked by the simulator.
func (s *Simulator) route() []core.LatLng {
	return append([]core.LatLng{s.cfg.Start}, s.cfg.Waypoints...)
}

// Step advances the walk by one interval and returns the reported fix.
// The true position follows the route; the reported one adds jitter.
func (s *Simulator) Step() core.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var heading *float64
	route := s.route()
	if len(route) > 1 && s.cfg.SpeedMps > 0 {
		remaining := s.cfg.SpeedMps * s.cfg.Interval.Seconds()
		for remaining > 0 {
			next := route[(s.target+1)%len(route)]
			dist := geo.Haversine(s.pos, next)
			if dist <= arriveMeters {
				s.pos = next
				s.target = (s.target + 1) % len(route)
				continue
			}
			b := geo.Bearing(s.pos, next)
			heading = &b
			if dist <= remaining {
				s.pos = next
				s.target = (s.target + 1) % len(route)
				remaining -= dist
				continue
			}
			s.pos = geo.Offset(s.pos, b, remaining)
			remaining = 0
		}
	}

	reported := s.pos
	if s.cfg.JitterMeters > 0 {
		reported = geo.Offset(reported, s.rng.Float64()*360, s.rng.Float64()*s.cfg.JitterMeters)
	}
	return core.LocationSample{
		Position:    reported,
		HeadingDeg:  heading,
		TimestampMs: s.now().UnixMilli(),
	}
}

// Subscribe starts reporting fixes. onError is never called by the
// simulator. No callback runs after unsubscribe returns on the loop.
func (s *Simulator) Subscribe(onUpdate func(core.LocationSample), onError func(error)) func() {
	stop := make(chan struct{})
	var stopped atomic.Bool

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sample := s.Step()
				err := s.poster.Post(func() {
					if !stopped.Load() {
						onUpdate(sample)
					}
				})
				if err != nil {
					s.logger.Debug("Simulator stopped posting", "error", err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			close(stop)
		})
	}
}
