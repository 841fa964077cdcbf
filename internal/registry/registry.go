// Package registry keeps the set of map markers in step with the set of
// tracked entities that should be visible.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pilgrimsafe/tracker/internal/animator"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// Lookup resolves an entity ID to its latest state.
type Lookup func(id string) (core.TrackedEntity, bool)

// Result lists the IDs touched by one reconciliation pass.
type Result struct {
	Created []string
	Updated []string
	Removed []string
	Skipped []string
}

// Changed reports whether the pass performed any map operation.
func (r Result) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Removed) > 0
}

type liveMarker struct {
	handle mapapi.MarkerHandle
	target core.LatLng
	icon   mapapi.Icon
}

// Registry owns one marker per visible entity ID. Reconcile is the only
// operation that creates, moves or removes markers.
type Registry struct {
	surface  mapapi.Surface
	anim     *animator.Animator
	duration time.Duration
	onSelect func(id string)
	logger   *slog.Logger

	markers map[string]*liveMarker
}

// New creates a Registry drawing on surface. Position changes are animated
// over duration; onSelect is called with the entity ID when its marker is
// tapped.
func New(surface mapapi.Surface, anim *animator.Animator, duration time.Duration, onSelect func(id string), logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		surface:  surface,
		anim:     anim,
		duration: duration,
		onSelect: onSelect,
		logger:   logger,
		markers:  make(map[string]*liveMarker),
	}
}

// IconFor derives the marker icon of an entity.
func IconFor(e core.TrackedEntity) mapapi.Icon {
	return mapapi.Icon{
		Kind:       e.Kind,
		HeadingDeg: e.HeadingDeg,
		Status:     e.Status,
		Label:      e.DisplayName,
	}
}

// Reconcile makes the marker set match active. IDs that lookup cannot
// resolve are treated as inactive. Entities with malformed positions are
// skipped and reported in the returned error; the rest of the pass still
// runs. Calling Reconcile twice with the same input performs no map
// operations the second time.
func (r *Registry) Reconcile(active []string, lookup Lookup) (Result, error) {
	var (
		res  Result
		errs []error
	)

	seen := make(map[string]struct{}, len(active))
	for _, id := range active {
		if _, dup := seen[id]; dup {
			continue
		}
		e, ok := lookup(id)
		if !ok {
			continue
		}
		seen[id] = struct{}{}

		if !e.Position.Valid() {
			r.logger.Warn("skipping entity with invalid position",
				"id", id, "lat", e.Position.Lat, "lng", e.Position.Lng)
			res.Skipped = append(res.Skipped, id)
			errs = append(errs, fmt.Errorf("entity %s: %w", id, core.ErrInvalidPosition))
			continue
		}

		lm, exists := r.markers[id]
		if !exists {
			r.create(id, e)
			res.Created = append(res.Created, id)
			continue
		}
		if r.update(id, lm, e) {
			res.Updated = append(res.Updated, id)
		}
	}

	for _, id := range r.IDs() {
		if _, keep := seen[id]; keep {
			continue
		}
		r.remove(id)
		res.Removed = append(res.Removed, id)
	}

	if res.Changed() {
		r.logger.Debug("markers reconciled",
			"created", len(res.Created), "updated", len(res.Updated),
			"removed", len(res.Removed), "skipped", len(res.Skipped))
	}
	return res, errors.Join(errs...)
}

func (r *Registry) create(id string, e core.TrackedEntity) {
	icon := IconFor(e)
	var onClick func()
	if r.onSelect != nil {
		onClick = func() { r.onSelect(id) }
	}
	r.markers[id] = &liveMarker{
		handle: r.surface.AddMarker(e.Position, icon, onClick),
		target: e.Position,
		icon:   icon,
	}
}

func (r *Registry) update(id string, lm *liveMarker, e core.TrackedEntity) bool {
	changed := false
	if e.Position != lm.target {
		r.anim.Animate(id, lm.handle, lm.target, e.Position, r.duration)
		lm.target = e.Position
		changed = true
	}
	if icon := IconFor(e); !icon.Equal(lm.icon) {
		lm.handle.SetIcon(icon)
		lm.icon = icon
		changed = true
	}
	return changed
}

func (r *Registry) remove(id string) {
	lm, ok := r.markers[id]
	if !ok {
		return
	}
	r.anim.Cancel(id)
	lm.handle.Remove()
	delete(r.markers, id)
}

// Clear removes every marker.
func (r *Registry) Clear() []string {
	ids := r.IDs()
	for _, id := range ids {
		r.remove(id)
	}
	return ids
}

// IDs returns the IDs that currently have a marker, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.markers))
	for id := range r.markers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Has reports whether id has a marker.
func (r *Registry) Has(id string) bool {
	_, ok := r.markers[id]
	return ok
}

// Len returns the number of markers.
func (r *Registry) Len() int {
	return len(r.markers)
}

// Target returns the position the marker for id is at or moving to.
func (r *Registry) Target(id string) (core.LatLng, bool) {
	lm, ok := r.markers[id]
	if !ok {
		return core.LatLng{}, false
	}
	return lm.target, true
}
