// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/model"
	"github.com/pilgrimsafe/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to GORM Session.SessionUUID.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		SessionUUID: s.ID,
		StartTime:   s.StartTime,
		GroupName:   s.GroupName,
		Device:      s.Device,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return out
}

// CoreToTrackSample converts a core.EntitySample to a GORM model.TrackSample.
// The session foreign key is stamped by the writer.
func CoreToTrackSample(s core.EntitySample) model.TrackSample {
	mercator, err := geo.Coords3857From4326(s.Sample.Position)
	if err != nil {
		mercator = geom.NewEmptyPoint(geom.DimXY)
	}
	out := model.TrackSample{
		Time:             time.UnixMilli(s.Sample.TimestampMs),
		EntityID:         s.EntityID,
		Kind:             s.Kind.String(),
		Position:         geo.PointFromLatLng(s.Sample.Position),
		PositionMercator: mercator,
		TimestampMs:      s.Sample.TimestampMs,
	}
	if s.Sample.HeadingDeg != nil {
		out.HeadingDeg = sql.NullFloat64{Float64: *s.Sample.HeadingDeg, Valid: true}
	}
	return out
}

// CoreToRouteRecord converts a core.RouteRecord to a GORM model.RouteRecord.
func CoreToRouteRecord(r core.RouteRecord) model.RouteRecord {
	return model.RouteRecord{
		Time:           r.Time,
		OriginID:       r.Overlay.OriginID,
		DestinationID:  r.Overlay.DestinationID,
		Path:           geo.LineStringFromPath(r.Overlay.Polyline),
		DistanceMeters: r.Overlay.DistanceMeters,
		EtaSeconds:     r.Overlay.EtaSeconds,
	}
}

// CoreToHintEvent converts a core.HintRecord to a GORM model.HintEvent.
func CoreToHintEvent(h core.HintRecord) model.HintEvent {
	payload, err := json.Marshal(h.Hint)
	if err != nil {
		payload = []byte("{}")
	}
	return model.HintEvent{
		Time:     h.Time,
		HintID:   h.Hint.ID,
		Position: geo.PointFromLatLng(h.Hint.Position),
		Label:    h.Hint.Label,
		Payload:  datatypes.JSON(payload),
	}
}
