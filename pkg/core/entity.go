// pkg/core/entity.go
package core

// EntityKind is the category of a tracked entity.
type EntityKind uint8

const (
	KindSelf EntityKind = iota
	KindMember
	KindHelpCenter
	KindHighlight // transient marker placed by a center hint
)

func (k EntityKind) String() string {
	switch k {
	case KindSelf:
		return "self"
	case KindMember:
		return "member"
	case KindHelpCenter:
		return "helpcenter"
	case KindHighlight:
		return "highlight"
	default:
		return "unknown"
	}
}

// MemberStatus is the safety status a group member reports.
type MemberStatus string

const (
	StatusSafe    MemberStatus = "safe"
	StatusWarning MemberStatus = "warning"
	StatusDanger  MemberStatus = "danger"
)

// SelfID is the entity ID of the device owner.
const SelfID = "self"

// TrackedEntity is anything with a position rendered on the map.
type TrackedEntity struct {
	ID            string           `json:"id"`
	Kind          EntityKind       `json:"kind"`
	DisplayName   string           `json:"displayName"`
	Position      LatLng           `json:"position"`
	HeadingDeg    *float64         `json:"headingDeg,omitempty"`
	RecentPath    []LocationSample `json:"recentPath,omitempty"` // most recent last
	LastUpdatedMs int64            `json:"lastUpdatedMs"`
	Status        MemberStatus     `json:"status,omitempty"`
}

// AppendPath records s as the newest path sample, dropping the oldest
// samples so that at most limit remain. A limit <= 0 keeps no history.
func (e *TrackedEntity) AppendPath(s LocationSample, limit int) {
	if limit <= 0 {
		e.RecentPath = nil
		return
	}
	e.RecentPath = append(e.RecentPath, s)
	if over := len(e.RecentPath) - limit; over > 0 {
		// copy so the dropped prefix can be collected
		trimmed := make([]LocationSample, limit)
		copy(trimmed, e.RecentPath[over:])
		e.RecentPath = trimmed
	}
}

// MemberUpdate is one group member as reported by the membership feed.
type MemberUpdate struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Position    LatLng           `json:"position"`
	HeadingDeg  *float64         `json:"headingDeg,omitempty"`
	RecentPath  []LocationSample `json:"recentPath,omitempty"`
	Status      MemberStatus     `json:"status,omitempty"`
	TimestampMs int64            `json:"timestampMs"`
}

// HelpCenter is static reference data for a help desk location.
type HelpCenter struct {
	ID   string  `json:"id" yaml:"id" validate:"required"`
	Name string  `json:"name" yaml:"name" validate:"required"`
	Lat  float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// Position returns the center's coordinate.
func (h HelpCenter) Position() LatLng {
	return LatLng{Lat: h.Lat, Lng: h.Lng}
}

// GroupStatus folds member statuses: any danger wins, then any warning,
// otherwise safe. An empty group is safe.
func GroupStatus(statuses ...MemberStatus) MemberStatus {
	result := StatusSafe
	for _, s := range statuses {
		switch s {
		case StatusDanger:
			return StatusDanger
		case StatusWarning:
			result = StatusWarning
		}
	}
	return result
}
