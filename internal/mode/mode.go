// Package mode switches the map between the group view and the helpdesk
// view. Transitions are a pure function of the current mode and the
// event; the Controller applies the resulting effects in order.
package mode

import (
	"log/slog"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

// EventKind is a user or external trigger.
type EventKind uint8

const (
	// FindNearestHelp asks for the closest help center to the user.
	FindNearestHelp EventKind = iota + 1
	// ShowHelpdeskTarget focuses a help center chosen elsewhere.
	ShowHelpdeskTarget
	// BackToGroups returns to the group view.
	BackToGroups
)

func (k EventKind) String() string {
	switch k {
	case FindNearestHelp:
		return "find-nearest-help"
	case ShowHelpdeskTarget:
		return "show-helpdesk-target"
	case BackToGroups:
		return "back-to-groups"
	default:
		return "unknown"
	}
}

// Event is one transition trigger.
type Event struct {
	Kind EventKind
	// LocationKnown is set when the user has a valid position fix.
	LocationKnown bool
}

// Effect is a side effect the owner performs during a transition.
type Effect uint8

const (
	ClearMemberMarkers Effect = iota + 1
	ClearSelection
	ClearRoute
	ActivateHelpCenter
	RouteToHelpCenter
	ClearHelpCenter
	ActivateMembers
)

func (e Effect) String() string {
	switch e {
	case ClearMemberMarkers:
		return "clear-member-markers"
	case ClearSelection:
		return "clear-selection"
	case ClearRoute:
		return "clear-route"
	case ActivateHelpCenter:
		return "activate-help-center"
	case RouteToHelpCenter:
		return "route-to-help-center"
	case ClearHelpCenter:
		return "clear-help-center"
	case ActivateMembers:
		return "activate-members"
	default:
		return "unknown"
	}
}

// Next returns the mode after ev and the effects to run, teardown first.
// An event that does not leave the current mode yields no effects.
func Next(current core.MapMode, ev Event) (core.MapMode, []Effect) {
	switch current {
	case core.ModeGroups:
		switch ev.Kind {
		case FindNearestHelp, ShowHelpdeskTarget:
			effects := []Effect{ClearRoute, ClearSelection, ClearMemberMarkers, ActivateHelpCenter}
			if ev.LocationKnown {
				effects = append(effects, RouteToHelpCenter)
			}
			return core.ModeHelpdesk, effects
		}
	case core.ModeHelpdesk:
		if ev.Kind == BackToGroups {
			return core.ModeGroups, []Effect{ClearRoute, ClearHelpCenter, ActivateMembers}
		}
	}
	return current, nil
}

// Controller holds the current mode and applies transition effects.
type Controller struct {
	mode   core.MapMode
	apply  func(Effect)
	logger *slog.Logger
}

// NewController starts in ModeGroups. apply runs each effect synchronously.
func NewController(apply func(Effect), logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{mode: core.ModeGroups, apply: apply, logger: logger}
}

// Mode returns the current mode.
func (c *Controller) Mode() core.MapMode {
	return c.mode
}

// Handle runs the transition for ev and reports whether the mode changed.
// The new mode is in effect before any effect runs.
func (c *Controller) Handle(ev Event) bool {
	next, effects := Next(c.mode, ev)
	if next == c.mode {
		c.logger.Debug("mode event ignored", "mode", c.mode, "event", ev.Kind)
		return false
	}
	prev := c.mode
	c.mode = next
	for _, e := range effects {
		c.apply(e)
	}
	c.logger.Info("map mode changed", "from", prev, "to", next, "event", ev.Kind)
	return true
}
