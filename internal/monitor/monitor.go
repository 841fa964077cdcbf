// Package monitor periodically snapshots the map screen status into a status
// file and OTel gauges.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pilgrimsafe/tracker/internal/dispatcher"
	"github.com/pilgrimsafe/tracker/internal/mapscreen"
	"github.com/pilgrimsafe/tracker/pkg/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pilgrimsafe/tracker/internal/monitor"

// DefaultInterval is how often the status is refreshed.
const DefaultInterval = time.Second

// Requester runs an event on the owner loop.
type Requester interface {
	Request(ctx context.Context, e dispatcher.Event) (any, error)
}

// Pender reports queued, unwritten storage records.
type Pender interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Loop       Requester
	Storage    any // reported when it implements Pender
	StatusPath string
	Interval   time.Duration
	Logger     *slog.Logger
}

// Status is one snapshot, as written to the status file.
type Status struct {
	Time           time.Time         `json:"time"`
	Summary        mapscreen.Summary `json:"summary"`
	StoragePending int               `json:"storagePending"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}

	last atomic.Pointer[Status]
}

// NewService creates a new monitor service and registers its gauges.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Service{deps: deps}
	if err := s.registerGauges(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) registerGauges() error {
	m := otel.Meter(instrumentationName)

	members, err := m.Int64ObservableGauge("mapscreen.members",
		metric.WithDescription("Group members by online state"))
	if err != nil {
		return fmt.Errorf("creating members gauge: %w", err)
	}
	groupStatus, err := m.Int64ObservableGauge("mapscreen.group.status",
		metric.WithDescription("Group status: 0 safe, 1 warning, 2 danger"))
	if err != nil {
		return fmt.Errorf("creating group status gauge: %w", err)
	}
	pending, err := m.Int64ObservableGauge("storage.pending",
		metric.WithDescription("Queued, unwritten storage records"))
	if err != nil {
		return fmt.Errorf("creating storage pending gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := s.last.Load()
		if st == nil {
			return nil
		}
		online := int64(st.Summary.Online)
		o.ObserveInt64(members, online, metric.WithAttributes(attribute.Bool("online", true)))
		o.ObserveInt64(members, int64(st.Summary.Members)-online, metric.WithAttributes(attribute.Bool("online", false)))
		o.ObserveInt64(groupStatus, statusLevel(st.Summary.GroupStatus))
		o.ObserveInt64(pending, int64(st.StoragePending))
		return nil
	}, members, groupStatus, pending)
	if err != nil {
		return fmt.Errorf("registering monitor callback: %w", err)
	}
	return nil
}

func statusLevel(s core.MemberStatus) int64 {
	switch s {
	case core.StatusDanger:
		return 2
	case core.StatusWarning:
		return 1
	default:
		return 0
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent snapshot.
func (s *Service) Last() (Status, bool) {
	st := s.last.Load()
	if st == nil {
		return Status{}, false
	}
	return *st, true
}

// Refresh takes one snapshot and writes the status file.
func (s *Service) Refresh(ctx context.Context) (Status, error) {
	res, err := s.deps.Loop.Request(ctx, dispatcher.Event{Command: mapscreen.CmdStatus, Timestamp: time.Now()})
	if err != nil {
		return Status{}, err
	}
	summary, ok := res.(mapscreen.Summary)
	if !ok {
		return Status{}, fmt.Errorf("unexpected status result %T", res)
	}
	st := Status{Time: time.Now(), Summary: summary}
	if p, ok := s.deps.Storage.(Pender); ok {
		st.StoragePending = p.Pending()
	}
	s.last.Store(&st)

	if s.deps.StatusPath != "" {
		if err := writeStatus(s.deps.StatusPath, st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// writeStatus replaces the status file with st.
func writeStatus(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "statusPath", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
				if _, err := s.Refresh(ctx); err != nil {
					logger.Debug("Status refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
