package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pilgrimsafe/tracker/internal/schedule"
	"github.com/pilgrimsafe/tracker/pkg/core"
	"github.com/pilgrimsafe/tracker/pkg/mapapi"
)

// Async runs a Provider on its own goroutine per request and delivers the
// result through the owner loop.
type Async struct {
	provider Provider
	poster   schedule.Poster
	timeout  time.Duration
	logger   *slog.Logger

	requests metric.Int64Counter
}

var _ mapapi.RoutingService = (*Async)(nil)

// NewAsync wraps provider. A zero timeout disables the per-request deadline.
func NewAsync(provider Provider, poster schedule.Poster, timeout time.Duration, logger *slog.Logger) (*Async, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{provider: provider, poster: poster, timeout: timeout, logger: logger}

	var err error
	a.requests, err = otel.Meter(instrumentationName).Int64Counter(
		"routing.requests",
		metric.WithDescription("Route requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}
	return a, nil
}

// ComputeRoute starts a request. done runs on the owner loop at most once
// and never after cancel was called.
func (a *Async) ComputeRoute(origin, destination core.LatLng, done func(core.RouteResult, error)) func() {
	var (
		ctx       context.Context
		cancelCtx context.CancelFunc
	)
	if a.timeout > 0 {
		ctx, cancelCtx = context.WithTimeout(context.Background(), a.timeout)
	} else {
		ctx, cancelCtx = context.WithCancel(context.Background())
	}
	var cancelled atomic.Bool

	go func() {
		defer cancelCtx()
		result, err := a.provider.Route(ctx, origin, destination)
		a.count(result, err, cancelled.Load())

		postErr := a.poster.Post(func() {
			// cancel runs on the loop too, so this check is ordered with it
			if cancelled.Load() {
				return
			}
			done(result, err)
		})
		if postErr != nil {
			a.logger.Debug("Dropped route result", "error", postErr)
		}
	}()

	return func() {
		cancelled.Store(true)
		cancelCtx()
	}
}

func (a *Async) count(result core.RouteResult, err error, cancelled bool) {
	outcome := "ok"
	switch {
	case cancelled:
		outcome = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case len(result.Routes) == 0:
		outcome = "no_route"
	}
	a.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
