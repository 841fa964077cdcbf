package mapscreen

import (
	"fmt"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/mode"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// Recenter flies the viewport to the user's position.
func (s *Screen) Recenter() error {
	if s.self == nil {
		return core.ErrLocationUnknown
	}
	s.m.FlyTo(s.self.Position, s.cfg.RecenterZoom)
	return nil
}

// FocusGroup fits the viewport to the user and every member with a valid
// position. A single point is flown to instead.
func (s *Screen) FocusGroup() error {
	var points []core.LatLng
	if s.self != nil && s.self.Position.Valid() {
		points = append(points, s.self.Position)
	}
	for _, id := range s.memberOrder {
		if p := s.members[id].Position; p.Valid() {
			points = append(points, p)
		}
	}
	switch len(points) {
	case 0:
		return core.ErrLocationUnknown
	case 1:
		s.m.FlyTo(points[0], s.cfg.RecenterZoom)
		return nil
	}
	b, _ := geo.BoundsOf(points...)
	s.m.FitBounds(b, s.cfg.FitPaddingPx)
	return nil
}

// Select makes id the route target. The route is drawn once the user's
// position is known. Selecting the current target is a no-op.
func (s *Screen) Select(id string) error {
	if s.modes.Mode() != core.ModeGroups {
		return fmt.Errorf("select %s outside group view: %w", id, core.ErrUnknownMember)
	}
	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("select %s: %w", id, core.ErrUnknownMember)
	}
	if s.selected == id {
		return nil
	}
	s.selected = id
	s.logger.Info("member selected", "id", id)
	s.refreshRoute()
	return nil
}

// Deselect clears the member selection and its route.
func (s *Screen) Deselect() {
	if s.selected == "" {
		return
	}
	s.logger.Info("member deselected", "id", s.selected)
	s.deselect()
}

func (s *Screen) deselect() {
	s.selected = ""
	if s.modes.Mode() == core.ModeGroups {
		s.route.ClearRoute()
	}
}

// Selected returns the selected member ID, if any.
func (s *Screen) Selected() (string, bool) {
	return s.selected, s.selected != ""
}

// FindNearestHelp switches to the helpdesk view focused on the help
// center closest to the user. It needs a position fix and at least one
// help center; in the helpdesk view it does nothing.
func (s *Screen) FindNearestHelp() error {
	if s.modes.Mode() == core.ModeHelpdesk {
		return nil
	}
	if s.self == nil {
		return core.ErrLocationUnknown
	}
	hc, meters, err := geo.Nearest(s.self.Position, s.centers)
	if err != nil {
		return fmt.Errorf("finding nearest help center: %w", err)
	}
	s.logger.Info("nearest help center", "id", hc.ID, "meters", meters)
	return s.enterHelpdesk(hc, mode.FindNearestHelp)
}

// ShowHelpdeskTarget switches to the helpdesk view focused on hc. In the
// helpdesk view it does nothing.
func (s *Screen) ShowHelpdeskTarget(hc core.HelpCenter) error {
	if !hc.Position().Valid() {
		return fmt.Errorf("help center %s: %w", hc.ID, core.ErrInvalidPosition)
	}
	if s.modes.Mode() == core.ModeHelpdesk {
		return nil
	}
	return s.enterHelpdesk(hc, mode.ShowHelpdeskTarget)
}

func (s *Screen) enterHelpdesk(hc core.HelpCenter, kind mode.EventKind) error {
	s.pending = &hc
	s.modes.Handle(mode.Event{Kind: kind, LocationKnown: s.self != nil})
	s.pending = nil
	return nil
}

// BackToGroups returns to the group view.
func (s *Screen) BackToGroups() {
	s.modes.Handle(mode.Event{Kind: mode.BackToGroups})
}

// HandleHint flies to the hinted point and shows a highlight marker that
// removes itself after the highlight duration. A hint ID already applied
// is ignored; it reports whether the hint was applied.
func (s *Screen) HandleHint(h core.CenterHint) bool {
	if s.stopped || !h.Position.Valid() {
		return false
	}
	if !s.hints.First(h.ID) {
		s.logger.Debug("duplicate center hint", "id", h.ID)
		return false
	}

	if s.highlight != nil {
		s.highlight.cancel()
	}
	hl := &highlight{entity: core.TrackedEntity{
		ID:          highlightPrefix + h.ID,
		Kind:        core.KindHighlight,
		DisplayName: h.Label,
		Position:    h.Position,
	}}
	s.highlight = hl
	hl.cancel = s.clock.AfterFunc(s.cfg.HighlightDuration, func() {
		if s.highlight != hl {
			return
		}
		s.highlight = nil
		s.reconcile()
	})

	s.m.FlyTo(h.Position, s.cfg.HintZoom)
	s.reconcile()
	s.logger.Info("center hint applied", "id", h.ID)
	return true
}
