package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TrackerInfo{},
	&Session{},
	&TrackSample{},
	&RouteRecord{},
	&HintEvent{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// TrackerInfo describes the deployment that owns the database
type TrackerInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
}

func (*TrackerInfo) TableName() string {
	return "tracker_info"
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Session is one run of the map screen
type Session struct {
	ID          uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionUUID string       `json:"sessionId" gorm:"size:36;uniqueIndex:idx_session_uuid"`
	StartTime   time.Time    `json:"startTime" gorm:"type:timestamptz;"`
	EndTime     sql.NullTime `json:"endTime" gorm:"type:timestamptz;default:NULL"`
	GroupName   string       `json:"groupName" gorm:"size:127"`
	Device      string       `json:"device" gorm:"size:64"`
}

func (*Session) TableName() string {
	return "sessions"
}

// GetOrInsert loads the session with the same UUID or creates it.
func (s *Session) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing Session
	err = db.Where("session_uuid = ?", s.SessionUUID).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			if err = db.Create(s).Error; err != nil {
				return false, err
			}
			return true, nil
		}
		return false, err
	}
	*s = existing
	return false, nil
}

// TrackSample is one position of one entity.
//
// Position is stored in EPSG:4326 (x = longitude), PositionMercator in EPSG:3857.
type TrackSample struct {
	ID               uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	Time             time.Time       `json:"time" gorm:"type:timestamptz;"`
	SessionID        uint            `json:"sessionId" gorm:"index:idx_tracksample_session_id"`
	Session          Session         `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	EntityID         string          `json:"entityId" gorm:"size:64;index:idx_tracksample_entity_id"`
	Kind             string          `json:"kind" gorm:"size:16"`
	Position         geom.Point      `json:"position"`
	PositionMercator geom.Point      `json:"positionMercator"`
	HeadingDeg       sql.NullFloat64 `json:"headingDeg" gorm:"default:NULL"`
	TimestampMs      int64           `json:"timestampMs" gorm:"index:idx_tracksample_timestamp"`
}

func (*TrackSample) TableName() string {
	return "track_samples"
}

// RouteRecord is a route overlay as it was drawn
type RouteRecord struct {
	ID             uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	Time           time.Time       `json:"time" gorm:"type:timestamptz;"`
	SessionID      uint            `json:"sessionId" gorm:"index:idx_routerecord_session_id"`
	Session        Session         `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	OriginID       string          `json:"originId" gorm:"size:64"`
	DestinationID  string          `json:"destinationId" gorm:"size:64"`
	Path           geom.LineString `json:"path"`
	DistanceMeters float64         `json:"distanceMeters"`
	EtaSeconds     float64         `json:"etaSeconds"`
}

func (*RouteRecord) TableName() string {
	return "route_records"
}

// HintEvent is a center hint accepted by the map
type HintEvent struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_hintevent_session_id"`
	Session   Session        `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	HintID    string         `json:"hintId" gorm:"size:64"`
	Position  geom.Point     `json:"position"`
	Label     string         `json:"label" gorm:"size:255"`
	Payload   datatypes.JSON `json:"payload" gorm:"type:jsonb;default:'{}'"`
}

func (*HintEvent) TableName() string {
	return "hint_events"
}
