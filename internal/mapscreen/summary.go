package mapscreen

import (
	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/route"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// RouteSummary describes the drawn route.
type RouteSummary struct {
	DestinationID  string  `json:"destinationId"`
	DistanceMeters float64 `json:"distanceMeters"`
	EtaSeconds     float64 `json:"etaSeconds"`
	Text           string  `json:"text"`
}

// HelpSummary names a help center and its distance from the user.
type HelpSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
}

// Summary is the info panel content.
type Summary struct {
	SessionID     string            `json:"sessionId"`
	Mode          string            `json:"mode"`
	Members       int               `json:"members"`
	Online        int               `json:"online"`
	GroupStatus   core.MemberStatus `json:"groupStatus"`
	Location      *core.LatLng      `json:"location,omitempty"`
	LocationError string            `json:"locationError,omitempty"`
	Selected      string            `json:"selected,omitempty"`
	SelectedName  string            `json:"selectedName,omitempty"`
	Route         *RouteSummary     `json:"route,omitempty"`
	RouteError    string            `json:"routeError,omitempty"`
	RoutePending  bool              `json:"routePending"`
	HelpCenter    *HelpSummary      `json:"helpCenter,omitempty"`
	NearestHelp   *HelpSummary      `json:"nearestHelp,omitempty"`
	Markers       []string          `json:"markers"`
}

// Summary reports the current screen state.
func (s *Screen) Summary() Summary {
	sum := Summary{
		SessionID: s.cfg.SessionID,
		Mode:      s.modes.Mode().String(),
		Members:   len(s.memberOrder),
		Markers:   s.registry.IDs(),
	}

	nowMs := s.clock.Now().UnixMilli()
	statuses := make([]core.MemberStatus, 0, len(s.memberOrder))
	for _, id := range s.memberOrder {
		m := s.members[id]
		statuses = append(statuses, m.Status)
		if nowMs-m.LastUpdatedMs <= s.cfg.OnlineWindow.Milliseconds() {
			sum.Online++
		}
	}
	sum.GroupStatus = core.GroupStatus(statuses...)

	if s.self != nil {
		p := s.self.Position
		sum.Location = &p
		if hc, meters, err := geo.Nearest(p, s.centers); err == nil {
			sum.NearestHelp = &HelpSummary{ID: hc.ID, Name: hc.Name, DistanceMeters: meters}
		}
	}
	if s.locationErr != nil {
		sum.LocationError = s.locationErr.Error()
	}

	if s.selected != "" {
		sum.Selected = s.selected
		if m, ok := s.members[s.selected]; ok {
			sum.SelectedName = m.DisplayName
		}
	}

	if s.helpCenter != nil {
		sum.HelpCenter = &HelpSummary{ID: s.helpCenter.ID, Name: s.helpCenter.Name}
		if s.self != nil {
			sum.HelpCenter.DistanceMeters = geo.Haversine(s.self.Position, s.helpCenter.Position())
		}
	}

	if o, ok := s.route.Overlay(); ok {
		sum.Route = &RouteSummary{
			DestinationID:  o.DestinationID,
			DistanceMeters: o.DistanceMeters,
			EtaSeconds:     o.EtaSeconds,
			Text:           route.Summary(o.DistanceMeters, o.EtaSeconds),
		}
	}
	if err := s.route.Err(); err != nil {
		sum.RouteError = err.Error()
	}
	sum.RoutePending = s.route.Pending()
	return sum
}

// Overlay returns the drawn route, if any.
func (s *Screen) Overlay() (core.RouteOverlay, bool) {
	return s.route.Overlay()
}

// Member returns a copy of a member's tracked state.
func (s *Screen) Member(id string) (core.TrackedEntity, bool) {
	m, ok := s.members[id]
	if !ok {
		return core.TrackedEntity{}, false
	}
	return *m, true
}

// Self returns the user's tracked state once a fix has arrived.
func (s *Screen) Self() (core.TrackedEntity, bool) {
	if s.self == nil {
		return core.TrackedEntity{}, false
	}
	return *s.self, true
}
