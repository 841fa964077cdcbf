// Package schedule provides the time source, timers and display-frame
// callbacks used by the tracking components. Every callback runs on the
// owner loop.
package schedule

import (
	"sync"
	"time"
)

// Scheduler is the clock and timer source of the owner loop.
type Scheduler interface {
	Now() time.Time
	// AfterFunc runs fn once after d. cancel prevents fn from running if it has not yet.
	AfterFunc(d time.Duration, fn func()) (cancel func())
	// RequestFrame runs fn on the next display frame.
	RequestFrame(fn func(now time.Time)) (cancel func())
}

// Poster hands a function to the owner loop.
type Poster interface {
	Post(fn func()) error
}

// Loop schedules timers on the runtime and posts their callbacks to the
// owner loop. Cancellation is checked on the loop, so a timer that fired
// but was cancelled before its callback ran is dropped.
type Loop struct {
	poster        Poster
	frameInterval time.Duration
}

// NewLoop creates a Loop posting to p with the given frame rate.
func NewLoop(p Poster, frameRateHz int) *Loop {
	if frameRateHz <= 0 {
		frameRateHz = 60
	}
	return &Loop{
		poster:        p,
		frameInterval: time.Second / time.Duration(frameRateHz),
	}
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc runs fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) func() {
	var (
		mu        sync.Mutex
		cancelled bool
	)
	t := time.AfterFunc(d, func() {
		_ = l.poster.Post(func() {
			mu.Lock()
			c := cancelled
			mu.Unlock()
			if !c {
				fn()
			}
		})
	})
	return func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		t.Stop()
	}
}

// RequestFrame runs fn on the loop after one frame interval.
func (l *Loop) RequestFrame(fn func(now time.Time)) func() {
	return l.AfterFunc(l.frameInterval, func() { fn(time.Now()) })
}
