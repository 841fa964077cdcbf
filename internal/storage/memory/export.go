// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = "1"

// SessionExport is the root JSON structure
type SessionExport struct {
	Version         string      `json:"version"`
	SessionID       string      `json:"sessionId"`
	GroupName       string      `json:"groupName"`
	Device          string      `json:"device,omitempty"`
	StartTime       string      `json:"startTime"`
	EndTime         string      `json:"endTime"`
	DurationSeconds float64     `json:"durationSeconds"`
	Tracks          []TrackJSON `json:"tracks"`
	Routes          []RouteJSON `json:"routes"`
	Hints           []HintJSON  `json:"hints"`
}

// TrackJSON is one entity's path. Each position is
// [lat, lng, headingDeg or null, timestampMs].
type TrackJSON struct {
	EntityID  string  `json:"entityId"`
	Kind      string  `json:"kind"`
	Positions [][]any `json:"positions"`
}

// RouteJSON is a rendered route. Polyline points are [lat, lng].
type RouteJSON struct {
	TimeMs         int64        `json:"timeMs"`
	OriginID       string       `json:"originId"`
	DestinationID  string       `json:"destinationId"`
	DistanceMeters float64      `json:"distanceMeters"`
	EtaSeconds     float64      `json:"etaSeconds"`
	Polyline       [][2]float64 `json:"polyline"`
}

type HintJSON struct {
	TimeMs int64   `json:"timeMs"`
	ID     string  `json:"id"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Label  string  `json:"label,omitempty"`
}

// exportJSON writes the session data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := b.session.GroupName
	if name == "" {
		name = "session"
	}
	name = strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(name)
	timestamp := b.session.StartTime.UTC().Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Version:         ExportVersion,
		SessionID:       b.session.ID,
		GroupName:       b.session.GroupName,
		Device:          b.session.Device,
		StartTime:       b.session.StartTime.UTC().Format(time.RFC3339),
		EndTime:         b.session.EndTime.UTC().Format(time.RFC3339),
		DurationSeconds: b.session.Duration(b.now()).Seconds(),
		Tracks:          make([]TrackJSON, 0, len(b.tracks)),
		Routes:          make([]RouteJSON, 0, len(b.routes)),
		Hints:           make([]HintJSON, 0, len(b.hints)),
	}

	ids := make([]string, 0, len(b.tracks))
	for id := range b.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		record := b.tracks[id]
		track := TrackJSON{
			EntityID:  record.EntityID,
			Kind:      record.Kind.String(),
			Positions: make([][]any, 0, len(record.Samples)),
		}
		for _, s := range record.Samples {
			var heading any
			if s.HeadingDeg != nil {
				heading = *s.HeadingDeg
			}
			track.Positions = append(track.Positions, []any{
				s.Position.Lat, // [0] lat
				s.Position.Lng, // [1] lng
				heading,        // [2] heading or null
				s.TimestampMs,  // [3] timestamp
			})
		}
		export.Tracks = append(export.Tracks, track)
	}

	for _, r := range b.routes {
		route := RouteJSON{
			TimeMs:         r.Time.UnixMilli(),
			OriginID:       r.Overlay.OriginID,
			DestinationID:  r.Overlay.DestinationID,
			DistanceMeters: r.Overlay.DistanceMeters,
			EtaSeconds:     r.Overlay.EtaSeconds,
			Polyline:       make([][2]float64, 0, len(r.Overlay.Polyline)),
		}
		for _, p := range r.Overlay.Polyline {
			route.Polyline = append(route.Polyline, [2]float64{p.Lat, p.Lng})
		}
		export.Routes = append(export.Routes, route)
	}

	for _, h := range b.hints {
		export.Hints = append(export.Hints, HintJSON{
			TimeMs: h.Time.UnixMilli(),
			ID:     h.Hint.ID,
			Lat:    h.Hint.Position.Lat,
			Lng:    h.Hint.Position.Lng,
			Label:  h.Hint.Label,
		})
	}

	return export
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
