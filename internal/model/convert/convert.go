package convert

import (
	"github.com/pilgrimsafe/tracker/internal/geo"
	"github.com/pilgrimsafe/tracker/internal/model"
	"github.com/pilgrimsafe/tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToLatLng converts a 4326 geom.Point back to a coordinate
func pointToLatLng(p geom.Point) core.LatLng {
	xy, ok := p.XY()
	if !ok {
		return core.LatLng{}
	}
	return core.LatLng{Lat: xy.Y, Lng: xy.X}
}

func kindFromString(s string) core.EntityKind {
	for _, k := range []core.EntityKind{core.KindSelf, core.KindMember, core.KindHelpCenter, core.KindHighlight} {
		if k.String() == s {
			return k
		}
	}
	return core.KindMember
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:        s.SessionUUID,
		StartTime: s.StartTime,
		GroupName: s.GroupName,
		Device:    s.Device,
	}
	if s.EndTime.Valid {
		out.EndTime = s.EndTime.Time
	}
	return out
}

// TrackSampleToCore converts a GORM TrackSample to a core.EntitySample.
func TrackSampleToCore(s model.TrackSample, sessionID string) core.EntitySample {
	out := core.EntitySample{
		SessionID: sessionID,
		EntityID:  s.EntityID,
		Kind:      kindFromString(s.Kind),
		Sample: core.LocationSample{
			Position:    pointToLatLng(s.Position),
			TimestampMs: s.TimestampMs,
		},
	}
	if s.HeadingDeg.Valid {
		out.Sample.HeadingDeg = core.Heading(s.HeadingDeg.Float64)
	}
	return out
}

// RouteRecordToCore converts a GORM RouteRecord to a core.RouteRecord.
func RouteRecordToCore(r model.RouteRecord, sessionID string) core.RouteRecord {
	return core.RouteRecord{
		SessionID: sessionID,
		Time:      r.Time,
		Overlay: core.RouteOverlay{
			OriginID:       r.OriginID,
			DestinationID:  r.DestinationID,
			Polyline:       geo.PathFromLineString(r.Path),
			DistanceMeters: r.DistanceMeters,
			EtaSeconds:     r.EtaSeconds,
		},
	}
}

// HintEventToCore converts a GORM HintEvent to a core.HintRecord.
func HintEventToCore(h model.HintEvent, sessionID string) core.HintRecord {
	return core.HintRecord{
		SessionID: sessionID,
		Time:      h.Time,
		Hint: core.CenterHint{
			ID:       h.HintID,
			Position: pointToLatLng(h.Position),
			Label:    h.Label,
		},
	}
}
