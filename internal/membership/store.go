// Package membership keeps the current group roster in memory and feeds it
// to the map screen.
package membership

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// ErrStale is returned when an update is older than the stored one.
var ErrStale = errors.New("stale member update")

// Store is a mapapi.MembershipFeed backed by a map. Writers may call it
// from any goroutine; subscribers are notified on the owner loop. Every
// change gets a version, and a subscriber never receives a roster older
// than one it has already seen.
type Store struct {
	poster schedule.Poster
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	members map[string]core.MemberUpdate
	version uint64
	subs    map[int]*subscriber
	nextSub int
}

type subscriber struct {
	fn        func([]core.MemberUpdate)
	delivered atomic.Uint64
}

// deliver hands snapshot to fn unless a newer version got there first.
func (sub *subscriber) deliver(version uint64, snapshot []core.MemberUpdate) bool {
	for {
		last := sub.delivered.Load()
		if version <= last {
			return false
		}
		if sub.delivered.CompareAndSwap(last, version) {
			break
		}
	}
	sub.fn(snapshot)
	return true
}

// change is a roster snapshot taken together with the mutation it follows.
type change struct {
	version  uint64
	snapshot []core.MemberUpdate
	subs     []*subscriber
}

var _ mapapi.MembershipFeed = (*Store)(nil)

// NewStore creates a Store seeded with members.
func NewStore(poster schedule.Poster, logger *slog.Logger, members ...core.MemberUpdate) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		poster:  poster,
		logger:  logger,
		now:     time.Now,
		members: make(map[string]core.MemberUpdate, len(members)),
		subs:    make(map[int]*subscriber),
	}
	for _, m := range members {
		s.members[m.ID] = m
	}
	return s
}

// Members returns the roster sorted by ID.
func (s *Store) Members() []core.MemberUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []core.MemberUpdate {
	out := make([]core.MemberUpdate, 0, len(s.members))
	for _, m := range s.members {
		m.RecentPath = slices.Clone(m.RecentPath)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one member.
func (s *Store) Get(id string) (core.MemberUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	return m, ok
}

// Subscribe registers onChange. It receives the full roster after every change.
func (s *Store) Subscribe(onChange func([]core.MemberUpdate)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscriber{fn: onChange}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Upsert stores u. Updates must not go back in time for a member.
func (s *Store) Upsert(u core.MemberUpdate) error {
	if u.ID == "" {
		return fmt.Errorf("member id is required")
	}
	s.mu.Lock()
	if old, ok := s.members[u.ID]; ok && u.TimestampMs < old.TimestampMs {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s at %d < %d", ErrStale, u.ID, u.TimestampMs, old.TimestampMs)
	}
	if u.Status == "" {
		u.Status = core.StatusSafe
	}
	s.members[u.ID] = u
	ch := s.changedLocked()
	s.mu.Unlock()

	s.notify(ch)
	return nil
}

// SetStatus changes the safety status of a member.
func (s *Store) SetStatus(id string, status core.MemberStatus) error {
	s.mu.Lock()
	m, ok := s.members[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrUnknownMember, id)
	}
	m.Status = status
	if now := s.now().UnixMilli(); now > m.TimestampMs {
		m.TimestampMs = now
	}
	s.members[id] = m
	ch := s.changedLocked()
	s.mu.Unlock()

	s.notify(ch)
	return nil
}

// Remove drops a member from the group.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.members[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.members, id)
	ch := s.changedLocked()
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// changedLocked bumps the version and captures the roster. s.mu must be
// held for writing.
func (s *Store) changedLocked() change {
	s.version++
	ch := change{
		version:  s.version,
		snapshot: s.snapshotLocked(),
		subs:     make([]*subscriber, 0, len(s.subs)),
	}
	for _, sub := range s.subs {
		ch.subs = append(ch.subs, sub)
	}
	return ch
}

// notify posts one callback per subscriber with a shared snapshot.
func (s *Store) notify(ch change) {
	for _, sub := range ch.subs {
		err := s.poster.Post(func() {
			if !sub.deliver(ch.version, ch.snapshot) {
				s.logger.Debug("Skipped outdated membership change", "version", ch.version)
			}
		})
		if err != nil {
			s.logger.Debug("Dropped membership change", "error", err)
		}
	}
}

// DriftConfig moves members around to simulate a walking group.
type DriftConfig struct {
	Interval time.Duration
	Meters   float64
}

// StartDrift moves every member by up to cfg.Meters each cfg.Interval in a
// random direction. A nil rng uses a randomly seeded source.
func (s *Store) StartDrift(cfg DriftConfig, rng *rand.Rand) (stop func()) {
	if cfg.Interval <= 0 || cfg.Meters <= 0 {
		return func() {}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Drift(cfg.Meters, rng)
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Drift moves every member once and notifies subscribers.
func (s *Store) Drift(maxMeters float64, rng *rand.Rand) {
	now := s.now().UnixMilli()

	s.mu.Lock()
	if len(s.members) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	// fixed order so a seeded rng gives a reproducible walk
	sort.Strings(ids)
	for _, id := range ids {
		m := s.members[id]
		if !m.Position.Valid() {
			continue
		}
		bearing := rng.Float64() * 360
		m.Position = geo.Offset(m.Position, bearing, rng.Float64()*maxMeters)
		m.HeadingDeg = &bearing
		if now > m.TimestampMs {
			m.TimestampMs = now
		}
		s.members[id] = m
	}
	ch := s.changedLocked()
	s.mu.Unlock()

	s.notify(ch)
}
