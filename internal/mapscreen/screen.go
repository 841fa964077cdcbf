// Package mapscreen composes the sampler, marker registry, route and mode
// controllers into the live map screen. Every exported method must run on
// the owner loop; collaborator callbacks are expected there too.
package mapscreen

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/pilgrimsafe/tracker/internal/animator"
	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/hint"
	"github.com/pilgrimsafe/tracker/internal/mode"
	"github.com/pilgrimsafe/tracker/internal/registry"
	"github.com/pilgrimsafe/tracker/internal/route"
	"github.com/pilgrimsafe/tracker/internal/sampler"
	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

const (
	helpCenterPrefix = "helpcenter:"
	highlightPrefix  = "hint:"
)

// Config tunes the screen. Zero values take the defaults below.
type Config struct {
	SessionID         string
	Sampler           sampler.Config
	AnimationDuration time.Duration
	RecentPathLimit   int
	HighlightDuration time.Duration
	OnlineWindow      time.Duration
	DefaultCenter     core.LatLng
	DefaultZoom       float64
	RecenterZoom      float64
	HintZoom          float64
	FitPaddingPx      int
}

// Defaults.
const (
	DefaultAnimationDuration = 300 * time.Millisecond
	DefaultRecentPathLimit   = 20
	DefaultHighlightDuration = 5500 * time.Millisecond
	DefaultOnlineWindow      = 2 * time.Minute
	DefaultZoom              = 15
	DefaultRecenterZoom      = 17
	DefaultHintZoom          = 18
)

// DefaultCenter is the initial viewport center before the first fix.
var DefaultCenter = core.LatLng{Lat: 23.1828, Lng: 75.7682}

func (c *Config) applyDefaults() {
	if c.AnimationDuration == 0 {
		c.AnimationDuration = DefaultAnimationDuration
	}
	if c.RecentPathLimit == 0 {
		c.RecentPathLimit = DefaultRecentPathLimit
	}
	if c.HighlightDuration == 0 {
		c.HighlightDuration = DefaultHighlightDuration
	}
	if c.OnlineWindow == 0 {
		c.OnlineWindow = DefaultOnlineWindow
	}
	if c.DefaultCenter == (core.LatLng{}) {
		c.DefaultCenter = DefaultCenter
	}
	if c.DefaultZoom == 0 {
		c.DefaultZoom = DefaultZoom
	}
	if c.RecenterZoom == 0 {
		c.RecenterZoom = DefaultRecenterZoom
	}
	if c.HintZoom == 0 {
		c.HintZoom = DefaultHintZoom
	}
	if c.FitPaddingPx == 0 {
		c.FitPaddingPx = route.DefaultFitPaddingPx
	}
}

// Recorder receives position samples and rendered routes. Calls happen on
// the owner loop and must not block.
type Recorder interface {
	RecordSample(s core.EntitySample)
	RecordRoute(sessionID string, o core.RouteOverlay)
}

type nopRecorder struct{}

func (nopRecorder) RecordSample(core.EntitySample)        {}
func (nopRecorder) RecordRoute(string, core.RouteOverlay) {}

// Deps are the collaborators of a Screen.
type Deps struct {
	Map         mapapi.Map
	Sensor      mapapi.LocationSensor
	Feed        mapapi.MembershipFeed
	Router      mapapi.RoutingService
	Scheduler   schedule.Scheduler
	HelpCenters []core.HelpCenter
	Recorder    Recorder
	Logger      *slog.Logger
	Rand        *rand.Rand
}

type highlight struct {
	entity core.TrackedEntity
	cancel func()
}

// Screen is the map screen state owner.
type Screen struct {
	cfg      Config
	m        mapapi.Map
	feed     mapapi.MembershipFeed
	clock    schedule.Scheduler
	recorder Recorder
	logger   *slog.Logger

	sampler  *sampler.Sampler
	anim     *animator.Animator
	registry *registry.Registry
	route    *route.Controller
	modes    *mode.Controller
	hints    *hint.Dedupe

	centers     []core.HelpCenter
	self        *core.TrackedEntity
	members     map[string]*core.TrackedEntity
	memberOrder []string
	selected    string
	helpCenter  *core.HelpCenter
	pending     *core.HelpCenter
	highlight   *highlight

	locationErr  error
	reconcileErr error

	unsubscribeFeed func()
	started         bool
	stopped         bool

	// mirrored for readers off the loop, e.g. log context
	modeMirror atomic.Uint32
}

// New wires a Screen. Start must be called on the owner loop.
func New(cfg Config, deps Deps) (*Screen, error) {
	cfg.applyDefaults()
	if deps.Map == nil || deps.Sensor == nil || deps.Feed == nil || deps.Router == nil || deps.Scheduler == nil {
		return nil, fmt.Errorf("map screen: missing collaborator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	s := &Screen{
		cfg:      cfg,
		m:        deps.Map,
		feed:     deps.Feed,
		clock:    deps.Scheduler,
		recorder: recorder,
		logger:   logger,
		centers:  append([]core.HelpCenter(nil), deps.HelpCenters...),
		members:  make(map[string]*core.TrackedEntity),
		hints:    hint.NewDedupe(0),
	}

	smp, err := sampler.New(deps.Sensor, deps.Scheduler, cfg.Sampler, deps.Rand, logger.With("component", "sampler"))
	if err != nil {
		return nil, err
	}
	s.sampler = smp
	s.anim = animator.New(deps.Scheduler)
	s.registry = registry.New(deps.Map, s.anim, cfg.AnimationDuration, s.onMarkerClick, logger.With("component", "registry"))
	s.route = route.New(deps.Map, deps.Router, logger.With("component", "route"),
		route.WithFitPadding(cfg.FitPaddingPx),
		route.OnRendered(func(o core.RouteOverlay) { s.recorder.RecordRoute(s.cfg.SessionID, o) }),
	)
	s.modes = mode.NewController(s.applyEffect, logger.With("component", "mode"))
	return s, nil
}

// Start sets the initial view, loads the current group and subscribes to
// the sensor and the membership feed.
func (s *Screen) Start() {
	if s.started {
		return
	}
	s.started = true
	s.m.SetView(s.cfg.DefaultCenter, s.cfg.DefaultZoom)
	s.applyMembers(s.feed.Members())
	s.unsubscribeFeed = s.feed.Subscribe(s.applyMembers)
	s.sampler.Start(s.onSample, s.onSensorError)
	s.logger.Info("map screen started", "session", s.cfg.SessionID, "members", len(s.members))
}

// Stop releases the sensor and feed subscriptions, cancels in-flight
// routing, animations and timers, and removes every overlay. Only the
// first call has an effect.
func (s *Screen) Stop() {
	if !s.started || s.stopped {
		return
	}
	s.stopped = true
	s.sampler.Stop()
	if s.unsubscribeFeed != nil {
		s.unsubscribeFeed()
		s.unsubscribeFeed = nil
	}
	s.route.ClearRoute()
	if s.highlight != nil {
		s.highlight.cancel()
		s.highlight = nil
	}
	s.anim.CancelAll()
	s.registry.Clear()
	s.logger.Info("map screen stopped", "session", s.cfg.SessionID)
}

// Mode returns the current map mode. Safe to call from any goroutine.
func (s *Screen) Mode() core.MapMode {
	return core.MapMode(s.modeMirror.Load())
}

// LogAttrs returns attributes describing the screen for log records.
// Safe to call from any goroutine.
func (s *Screen) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("session", s.cfg.SessionID),
		slog.String("mode", s.Mode().String()),
	}
}

func (s *Screen) onSample(ls core.LocationSample) {
	if s.stopped {
		return
	}
	first := s.self == nil
	if first {
		s.self = &core.TrackedEntity{ID: core.SelfID, Kind: core.KindSelf, DisplayName: "You"}
	}
	s.self.Position = ls.Position
	s.self.HeadingDeg = ls.HeadingDeg
	s.self.LastUpdatedMs = ls.TimestampMs
	s.self.AppendPath(ls, s.cfg.RecentPathLimit)
	s.locationErr = nil

	s.recorder.RecordSample(core.EntitySample{
		SessionID: s.cfg.SessionID,
		EntityID:  core.SelfID,
		Kind:      core.KindSelf,
		Sample:    ls,
	})

	s.reconcile()
	if first {
		s.m.PanTo(ls.Position)
	}
	s.refreshRoute()
}

func (s *Screen) onSensorError(err error) {
	if s.stopped {
		return
	}
	s.locationErr = err
}

// applyMembers replaces the group with the feed's current list. Updates
// older than what is already known for a member are ignored.
func (s *Screen) applyMembers(updates []core.MemberUpdate) {
	if s.stopped {
		return
	}
	order := make([]string, 0, len(updates))
	present := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		if u.ID == "" || u.ID == core.SelfID {
			s.logger.Warn("ignoring member with reserved id", "id", u.ID)
			continue
		}
		if _, dup := present[u.ID]; dup {
			continue
		}
		present[u.ID] = struct{}{}
		order = append(order, u.ID)
		s.applyMember(u)
	}

	for id := range s.members {
		if _, ok := present[id]; !ok {
			delete(s.members, id)
		}
	}
	s.memberOrder = order

	if s.selected != "" {
		if _, ok := s.members[s.selected]; !ok {
			s.logger.Info("selected member left the group", "id", s.selected)
			s.deselect()
		}
	}

	if s.modes.Mode() == core.ModeGroups {
		s.reconcile()
		s.refreshRoute()
	}
}

func (s *Screen) applyMember(u core.MemberUpdate) {
	e, ok := s.members[u.ID]
	if ok && u.TimestampMs < e.LastUpdatedMs {
		return
	}
	if !ok {
		e = &core.TrackedEntity{ID: u.ID, Kind: core.KindMember}
		s.members[u.ID] = e
	}
	moved := !ok || e.Position != u.Position

	e.DisplayName = u.Name
	e.Position = u.Position
	e.HeadingDeg = geo.NormalizeHeading(u.HeadingDeg)
	e.Status = u.Status
	if e.Status == "" {
		e.Status = core.StatusSafe
	}
	e.LastUpdatedMs = u.TimestampMs

	sample := core.LocationSample{Position: u.Position, HeadingDeg: e.HeadingDeg, TimestampMs: u.TimestampMs}
	switch {
	case len(u.RecentPath) > 0:
		path := u.RecentPath
		if over := len(path) - s.cfg.RecentPathLimit; over > 0 {
			path = path[over:]
		}
		e.RecentPath = append([]core.LocationSample(nil), path...)
	case moved:
		e.AppendPath(sample, s.cfg.RecentPathLimit)
	}

	if moved && u.Position.Valid() {
		s.recorder.RecordSample(core.EntitySample{
			SessionID: s.cfg.SessionID,
			EntityID:  u.ID,
			Kind:      core.KindMember,
			Sample:    sample,
		})
	}
}

// activeIDs is the entity set that should have markers in the current mode.
func (s *Screen) activeIDs() []string {
	ids := make([]string, 0, len(s.memberOrder)+3)
	if s.self != nil {
		ids = append(ids, core.SelfID)
	}
	switch s.modes.Mode() {
	case core.ModeGroups:
		ids = append(ids, s.memberOrder...)
	case core.ModeHelpdesk:
		if s.helpCenter != nil {
			ids = append(ids, helpCenterPrefix+s.helpCenter.ID)
		}
	}
	if s.highlight != nil {
		ids = append(ids, s.highlight.entity.ID)
	}
	return ids
}

func (s *Screen) lookup(id string) (core.TrackedEntity, bool) {
	switch {
	case id == core.SelfID:
		if s.self == nil {
			return core.TrackedEntity{}, false
		}
		return *s.self, true
	case s.helpCenter != nil && id == helpCenterPrefix+s.helpCenter.ID:
		return core.TrackedEntity{
			ID:          id,
			Kind:        core.KindHelpCenter,
			DisplayName: s.helpCenter.Name,
			Position:    s.helpCenter.Position(),
		}, true
	case s.highlight != nil && id == s.highlight.entity.ID:
		return s.highlight.entity, true
	}
	e, ok := s.members[id]
	if !ok {
		return core.TrackedEntity{}, false
	}
	return *e, true
}

func (s *Screen) reconcile() {
	_, err := s.registry.Reconcile(s.activeIDs(), s.lookup)
	s.reconcileErr = err
}

// refreshRoute points the route at the current target with the latest
// endpoint positions. Unchanged endpoints do not re-request.
func (s *Screen) refreshRoute() {
	if s.self == nil {
		return
	}
	origin := core.Endpoint{ID: core.SelfID, Position: s.self.Position}

	var dest core.Endpoint
	switch s.modes.Mode() {
	case core.ModeGroups:
		if s.selected == "" {
			return
		}
		m, ok := s.members[s.selected]
		if !ok {
			return
		}
		dest = core.Endpoint{ID: m.ID, Position: m.Position}
	case core.ModeHelpdesk:
		if s.helpCenter == nil {
			return
		}
		dest = core.Endpoint{ID: helpCenterPrefix + s.helpCenter.ID, Position: s.helpCenter.Position()}
	}

	if err := s.route.SetRoute(origin, dest); err != nil {
		s.logger.Warn("route not requested", "destination", dest.ID, "error", err)
	}
}

func (s *Screen) onMarkerClick(id string) {
	if _, ok := s.members[id]; !ok {
		return
	}
	if err := s.Select(id); err != nil {
		s.logger.Warn("marker selection failed", "id", id, "error", err)
	}
}

func (s *Screen) applyEffect(e mode.Effect) {
	s.modeMirror.Store(uint32(s.modes.Mode()))
	switch e {
	case mode.ClearRoute:
		s.route.ClearRoute()
	case mode.ClearSelection:
		s.selected = ""
	case mode.ClearMemberMarkers, mode.ActivateMembers:
		s.reconcile()
	case mode.ActivateHelpCenter:
		s.helpCenter = s.pending
		s.pending = nil
		s.reconcile()
		if s.helpCenter != nil && s.self == nil {
			s.m.PanTo(s.helpCenter.Position())
		}
	case mode.RouteToHelpCenter:
		s.refreshRoute()
	case mode.ClearHelpCenter:
		s.helpCenter = nil
		s.reconcile()
	}
}
