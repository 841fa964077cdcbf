package maptest

import (
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// Sensor is a LocationSensor driven by the test.
type Sensor struct {
	onUpdate     func(core.LocationSample)
	onError      func(error)
	Subscribes   int
	Unsubscribes int
}

var _ mapapi.LocationSensor = (*Sensor)(nil)

func (s *Sensor) Subscribe(onUpdate func(core.LocationSample), onError func(error)) func() {
	s.Subscribes++
	s.onUpdate, s.onError = onUpdate, onError
	return func() {
		s.Unsubscribes++
		s.onUpdate, s.onError = nil, nil
	}
}

// Emit delivers a raw fix if subscribed.
func (s *Sensor) Emit(sample core.LocationSample) {
	if s.onUpdate != nil {
		s.onUpdate(sample)
	}
}

// Fail delivers a sensor error if subscribed.
func (s *Sensor) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// Subscribed reports whether a subscription is active.
func (s *Sensor) Subscribed() bool {
	return s.onUpdate != nil
}

// Feed is a MembershipFeed driven by the test.
type Feed struct {
	members []core.MemberUpdate
	subs    map[int]func([]core.MemberUpdate)
	next    int
}

var _ mapapi.MembershipFeed = (*Feed)(nil)

// NewFeed creates a feed with an initial member list.
func NewFeed(members ...core.MemberUpdate) *Feed {
	return &Feed{members: members, subs: make(map[int]func([]core.MemberUpdate))}
}

func (f *Feed) Members() []core.MemberUpdate {
	return append([]core.MemberUpdate(nil), f.members...)
}

func (f *Feed) Subscribe(onChange func([]core.MemberUpdate)) func() {
	f.next++
	id := f.next
	f.subs[id] = onChange
	return func() { delete(f.subs, id) }
}

// Set replaces the member list and notifies subscribers.
func (f *Feed) Set(members ...core.MemberUpdate) {
	f.members = members
	for _, fn := range f.subs {
		fn(f.Members())
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	return len(f.subs)
}

// Request is a recorded routing request.
type Request struct {
	Origin      core.LatLng
	Destination core.LatLng
	Cancelled   bool
	Answered    bool
	done        func(core.RouteResult, error)
}

// Respond completes the request the way the routing service would.
// Cancelled or already answered requests are ignored.
func (r *Request) Respond(result core.RouteResult, err error) {
	if r.Cancelled || r.Answered {
		return
	}
	r.Answered = true
	r.done(result, err)
}

// Deliver invokes done even when the request was cancelled, simulating a
// response that raced its cancellation.
func (r *Request) Deliver(result core.RouteResult, err error) {
	r.Answered = true
	r.done(result, err)
}

// Router is a RoutingService whose responses are released by the test.
type Router struct {
	Requests []*Request
}

var _ mapapi.RoutingService = (*Router)(nil)

func (r *Router) ComputeRoute(origin, destination core.LatLng, done func(core.RouteResult, error)) func() {
	req := &Request{Origin: origin, Destination: destination, done: done}
	r.Requests = append(r.Requests, req)
	return func() { req.Cancelled = true }
}

// Last returns the most recent request or nil.
func (r *Router) Last() *Request {
	if len(r.Requests) == 0 {
		return nil
	}
	return r.Requests[len(r.Requests)-1]
}

// Pending returns requests neither answered nor cancelled.
func (r *Router) Pending() []*Request {
	var out []*Request
	for _, req := range r.Requests {
		if !req.Cancelled && !req.Answered {
			out = append(out, req)
		}
	}
	return out
}

// StraightRoute builds a two-point route result.
func StraightRoute(from, to core.LatLng, meters, etaSeconds float64) core.RouteResult {
	return core.RouteResult{Routes: []core.Route{{
		Polyline:       []core.LatLng{from, to},
		DistanceMeters: meters,
		EtaSeconds:     etaSeconds,
	}}}
}
