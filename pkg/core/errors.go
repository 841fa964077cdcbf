// pkg/core/errors.go
package core

import "errors"

var (
	// ErrSensorUnavailable is reported when the location stream cannot start or fails mid-stream.
	ErrSensorUnavailable = errors.New("location sensor unavailable")

	// ErrInvalidPosition is returned for non-finite or out-of-range coordinates.
	ErrInvalidPosition = errors.New("invalid entity position")

	// ErrRouteFailed is recorded when the routing service returns an error or no route.
	ErrRouteFailed = errors.New("route computation failed")

	// ErrNoCandidates is returned by nearest-center lookups over an empty set.
	ErrNoCandidates = errors.New("no help center candidates")

	// ErrLocationUnknown is returned by actions that need a self position before the first fix.
	ErrLocationUnknown = errors.New("user location unknown")

	// ErrUnknownMember is returned when selecting a member that is not in the group.
	ErrUnknownMember = errors.New("unknown group member")
)
