package schedule

import (
	"sort"
	"time"
)

// DefaultFrameInterval is the frame spacing used by Manual.
const DefaultFrameInterval = 16 * time.Millisecond

type manualTask struct {
	seq       uint64
	at        time.Time
	fn        func(now time.Time)
	cancelled bool
}

// Manual is a deterministic Scheduler driven by Advance. Frames are spaced
// by FrameInterval. It is not safe for concurrent use; like the real loop
// it expects a single owner.
type Manual struct {
	FrameInterval time.Duration

	now   time.Time
	seq   uint64
	tasks []*manualTask
}

// NewManual creates a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{FrameInterval: DefaultFrameInterval, now: start}
}

// Now returns the simulated time.
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc schedules fn at Now()+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) func() {
	return m.schedule(d, func(time.Time) { fn() })
}

// RequestFrame schedules fn one frame interval from now.
func (m *Manual) RequestFrame(fn func(now time.Time)) func() {
	return m.schedule(m.FrameInterval, fn)
}

func (m *Manual) schedule(d time.Duration, fn func(time.Time)) func() {
	m.seq++
	task := &manualTask{seq: m.seq, at: m.now.Add(d), fn: fn}
	m.tasks = append(m.tasks, task)
	return func() { task.cancelled = true }
}

// Pending returns the number of scheduled, uncancelled callbacks.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every callback that comes
// due in time order. Callbacks scheduled while advancing run too if they
// fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	for {
		next := m.popDue(end)
		if next == nil {
			break
		}
		m.now = next.at
		next.fn(m.now)
	}
	m.now = end
}

func (m *Manual) popDue(end time.Time) *manualTask {
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.tasks = live
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})
	head := m.tasks[0]
	if head.at.After(end) {
		return nil
	}
	m.tasks = m.tasks[1:]
	return head
}
