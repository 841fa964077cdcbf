// pkg/core/mode.go
package core

// MapMode selects which category of entities the map is focused on.
type MapMode uint8

const (
	ModeGroups MapMode = iota
	ModeHelpdesk
)

func (m MapMode) String() string {
	switch m {
	case ModeGroups:
		return "groups"
	case ModeHelpdesk:
		return "helpdesk"
	default:
		return "unknown"
	}
}
