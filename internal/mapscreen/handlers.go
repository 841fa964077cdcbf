package mapscreen

import (
	"fmt"

	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/pkg/core"
)

// Commands handled on the owner loop.
const (
	CmdRecenter       = ":ACTION:RECENTER:"
	CmdFocusGroup     = ":ACTION:FOCUS:GROUP:"
	CmdNearestHelp    = ":ACTION:NEAREST:HELP:"
	CmdHelpdeskTarget = ":ACTION:HELPDESK:TARGET:"
	CmdBackToGroups   = ":ACTION:GROUPS:"
	CmdSelectMember   = ":MEMBER:SELECT:"
	CmdDeselect       = ":MEMBER:DESELECT:"
	CmdHint           = ":HINT:"
	CmdStatus         = ":STATUS:"
)

// RegisterHandlers exposes the screen's actions as dispatcher commands.
// Every handler returns the resulting Summary.
func (s *Screen) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdRecenter, s.summarize(func(dispatcher.Event) error {
		return s.Recenter()
	}), dispatcher.Logged())

	d.Register(CmdFocusGroup, s.summarize(func(dispatcher.Event) error {
		return s.FocusGroup()
	}), dispatcher.Logged())

	d.Register(CmdNearestHelp, s.summarize(func(dispatcher.Event) error {
		return s.FindNearestHelp()
	}), dispatcher.Logged())

	d.Register(CmdHelpdeskTarget, s.summarize(func(e dispatcher.Event) error {
		hc, ok := e.Payload.(core.HelpCenter)
		if !ok {
			return fmt.Errorf("helpdesk target: unexpected payload %T", e.Payload)
		}
		return s.ShowHelpdeskTarget(hc)
	}), dispatcher.Logged())

	d.Register(CmdBackToGroups, s.summarize(func(dispatcher.Event) error {
		s.BackToGroups()
		return nil
	}), dispatcher.Logged())

	d.Register(CmdSelectMember, s.summarize(func(e dispatcher.Event) error {
		if len(e.Args) != 1 {
			return fmt.Errorf("select member: expected 1 arg, got %d", len(e.Args))
		}
		return s.Select(e.Args[0])
	}), dispatcher.Logged())

	d.Register(CmdDeselect, s.summarize(func(dispatcher.Event) error {
		s.Deselect()
		return nil
	}), dispatcher.Logged())

	d.Register(CmdHint, func(e dispatcher.Event) (any, error) {
		h, ok := e.Payload.(core.CenterHint)
		if !ok {
			return nil, fmt.Errorf("hint: unexpected payload %T", e.Payload)
		}
		return s.HandleHint(h), nil
	}, dispatcher.Logged())

	d.Register(CmdStatus, func(dispatcher.Event) (any, error) {
		return s.Summary(), nil
	})
}

func (s *Screen) summarize(fn func(dispatcher.Event) error) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		if err := fn(e); err != nil {
			return nil, err
		}
		return s.Summary(), nil
	}
}
