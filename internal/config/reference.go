package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"gopkg.in/yaml.v3"
)

// Reference is the static data the map screen starts from.
type Reference struct {
	HelpCenters      []core.HelpCenter      `yaml:"helpCenters" validate:"dive"`
	Group            GroupSeed              `yaml:"group"`
	EmergencyNumbers []core.EmergencyNumber `yaml:"emergencyNumbers" validate:"dive"`
}

// GroupSeed is the initial group shown before the membership feed reports.
type GroupSeed struct {
	Name    string       `yaml:"name"`
	Members []MemberSeed `yaml:"members" validate:"dive"`
}

type MemberSeed struct {
	ID     string            `yaml:"id" validate:"required"`
	Name   string            `yaml:"name" validate:"required"`
	Lat    float64           `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng    float64           `yaml:"lng" validate:"gte=-180,lte=180"`
	Status core.MemberStatus `yaml:"status" validate:"omitempty,oneof=safe warning danger"`
}

// Update converts the seed into a feed update stamped at ms.
func (m MemberSeed) Update(ms int64) core.MemberUpdate {
	status := m.Status
	if status == "" {
		status = core.StatusSafe
	}
	return core.MemberUpdate{
		ID:          m.ID,
		Name:        m.Name,
		Position:    core.LatLng{Lat: m.Lat, Lng: m.Lng},
		Status:      status,
		TimestampMs: ms,
	}
}

// DefaultReference is used when no reference file is configured.
func DefaultReference() Reference {
	return Reference{
		HelpCenters: []core.HelpCenter{
			{ID: "hc-north-gate", Name: "North Gate Help Desk", Lat: 23.2650, Lng: 77.4100},
			{ID: "hc-ghat", Name: "Ghat Help Desk", Lat: 23.2560, Lng: 77.4175},
			{ID: "hc-station", Name: "Station Help Desk", Lat: 23.2510, Lng: 77.4050},
		},
		Group: GroupSeed{
			Name: "Family Group",
			Members: []MemberSeed{
				{ID: "m-1", Name: "Ram Sharma", Lat: 23.2599, Lng: 77.4126, Status: core.StatusSafe},
				{ID: "m-2", Name: "Sita Devi", Lat: 23.2590, Lng: 77.4120, Status: core.StatusSafe},
				{ID: "m-3", Name: "Arjun", Lat: 23.2610, Lng: 77.4140, Status: core.StatusWarning},
			},
		},
		EmergencyNumbers: []core.EmergencyNumber{
			{Name: "Police", Number: "100"},
			{Name: "Ambulance", Number: "108"},
			{Name: "Pilgrim Helpline", Number: "1800-123-4567"},
		},
	}
}

// LoadReference reads and validates a YAML reference file. An empty path
// yields DefaultReference.
func LoadReference(path string) (Reference, error) {
	if path == "" {
		return DefaultReference(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Reference{}, fmt.Errorf("error reading reference file: %w", err)
	}
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return Reference{}, fmt.Errorf("error parsing reference file: %w", err)
	}
	if err := validator.New().Struct(ref); err != nil {
		return Reference{}, fmt.Errorf("invalid reference file: %w", err)
	}
	seen := make(map[string]bool, len(ref.HelpCenters))
	for _, hc := range ref.HelpCenters {
		if seen[hc.ID] {
			return Reference{}, fmt.Errorf("invalid reference file: duplicate help center %q", hc.ID)
		}
		seen[hc.ID] = true
	}
	return ref, nil
}
