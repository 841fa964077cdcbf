// Package animator eases marker positions between targets, one frame at a time.
package animator

import (
	"time"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// Target receives interpolated positions.
type Target interface {
	SetPosition(p core.LatLng)
}

// EaseInOutCubic maps t in [0,1] onto an ease-in-out curve.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

type animation struct {
	target   Target
	from, to core.LatLng
	current  core.LatLng
	start    time.Time
	duration time.Duration
	cancel   func()
}

// Animator runs at most one animation per marker ID.
type Animator struct {
	sched  schedule.Scheduler
	ease   func(float64) float64
	active map[string]*animation
}

// New creates an Animator driven by sched.
func New(sched schedule.Scheduler) *Animator {
	return &Animator{
		sched:  sched,
		ease:   EaseInOutCubic,
		active: make(map[string]*animation),
	}
}

// Animate moves target from from to to over d. If an animation for id is
// still running it is superseded, and the new one starts from the position
// the marker is currently rendered at. A non-positive d places the marker
// immediately.
func (a *Animator) Animate(id string, target Target, from, to core.LatLng, d time.Duration) {
	if prev, ok := a.active[id]; ok {
		from = prev.current
		a.stop(id, prev)
	}
	if d <= 0 || from == to {
		target.SetPosition(to)
		return
	}

	anim := &animation{
		target:   target,
		from:     from,
		to:       to,
		current:  from,
		start:    a.sched.Now(),
		duration: d,
	}
	a.active[id] = anim
	a.scheduleFrame(id, anim)
}

func (a *Animator) scheduleFrame(id string, anim *animation) {
	anim.cancel = a.sched.RequestFrame(func(now time.Time) {
		a.step(id, anim, now)
	})
}

func (a *Animator) step(id string, anim *animation, now time.Time) {
	if a.active[id] != anim {
		return
	}
	t := float64(now.Sub(anim.start)) / float64(anim.duration)
	if t >= 1 {
		// land exactly on the target, no residual drift
		anim.current = anim.to
		anim.target.SetPosition(anim.to)
		delete(a.active, id)
		return
	}
	if t < 0 {
		t = 0
	}
	anim.current = geo.Lerp(anim.from, anim.to, a.ease(t))
	anim.target.SetPosition(anim.current)
	a.scheduleFrame(id, anim)
}

func (a *Animator) stop(id string, anim *animation) {
	if anim.cancel != nil {
		anim.cancel()
	}
	delete(a.active, id)
}

// Current returns the interpolated position of a running animation.
func (a *Animator) Current(id string) (core.LatLng, bool) {
	anim, ok := a.active[id]
	if !ok {
		return core.LatLng{}, false
	}
	return anim.current, true
}

// Running reports whether id has an animation in flight.
func (a *Animator) Running(id string) bool {
	_, ok := a.active[id]
	return ok
}

// Cancel stops the animation for id, leaving the marker where it is.
func (a *Animator) Cancel(id string) {
	if anim, ok := a.active[id]; ok {
		a.stop(id, anim)
	}
}

// CancelAll stops every running animation.
func (a *Animator) CancelAll() {
	for id, anim := range a.active {
		a.stop(id, anim)
	}
}

// Len returns the number of running animations.
func (a *Animator) Len() int {
	return len(a.active)
}
