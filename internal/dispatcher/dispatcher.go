package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInboxSize is the capacity of the owner loop inbox.
const DefaultInboxSize = 1024

var (
	// ErrInboxFull is returned when the owner loop cannot accept more work.
	ErrInboxFull = errors.New("dispatcher inbox full")
	// ErrStopped is returned once the owner loop has exited, and by
	// Buffered handlers after Close.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrQueueFull is returned by a non-blocking Buffered handler whose
	// queue has no room.
	ErrQueueFull = errors.New("handler queue full")
)

// Event represents an incoming command for the map screen: a user action,
// a center hint, a storage write.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option changes how Register wraps a handler.
type Option func(*options)

type options struct {
	buffer   int
	blocking bool
	logged   bool
}

// Buffered moves the handler onto its own worker goroutine behind a queue
// of size events. Dispatch then returns "queued" at once.
func Buffered(size int) Option {
	return func(o *options) { o.buffer = size }
}

// Blocking makes a full Buffered queue wait for room rather than fail with
// ErrQueueFull.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every call at debug and failures at error.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers and owns the event loop
// that serializes every mutation of screen state. Handlers are registered
// before Run; Dispatch from inside the loop runs a handler inline, Submit
// and Request from other goroutines route through the inbox.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	inbox   chan func()
	done    chan struct{}
	runOnce sync.Once

	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// buffers of Buffered handlers, guarded by mu; closed by Close.
	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Instruments come from the global meter
// provider, which is a no-op unless one is installed.
func New(logger Logger, inboxSize int) (*Dispatcher, error) {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		logger:   logger,
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
	}
	if err := d.instrument(otel.Meter(instrumentationName)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) instrument(m metric.Meter) error {
	var err error
	if d.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled by the loop or a buffered worker")); err != nil {
		return fmt.Errorf("processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected because a queue was full")); err != nil {
		return fmt.Errorf("dropped counter: %w", err)
	}

	depth, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Pending events per queue"))
	if err != nil {
		return fmt.Errorf("queue gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(len(d.inbox)), commandAttr(loopCommand))
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, buf := range d.buffers {
			o.ObserveInt64(depth, int64(len(buf)), commandAttr(cmd))
		}
		return nil
	}, depth)
	if err != nil {
		return fmt.Errorf("queue gauge callback: %w", err)
	}
	return nil
}

// Register binds h to command, replacing any earlier handler. It must not
// race with Dispatch, so register everything before Run.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.buffer > 0 {
		h = d.withBuffer(command, o.buffer, o.blocking, h)
	}
	if o.logged {
		h = d.withLogging(command, h)
	}
	d.handlers[command] = h
}

// Dispatch runs the handler of e.Command on the calling goroutine.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, unknown(e.Command)
	}
	return h(e)
}

func unknown(command string) error {
	return fmt.Errorf("unknown command: %s", command)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Run executes posted work serially until ctx is cancelled. It may be
// called once; later calls return ErrStopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	started := false
	d.runOnce.Do(func() { started = true })
	if !started {
		return ErrStopped
	}
	defer close(d.done)

	loopAttr := commandAttr(loopCommand)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-d.inbox:
			d.invoke(fn)
			d.processed.Add(context.Background(), 1, loopAttr)
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Post queues fn on the owner loop without waiting for it.
func (d *Dispatcher) Post(fn func()) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}
	select {
	case d.inbox <- fn:
		return nil
	default:
		d.dropped.Add(context.Background(), 1, commandAttr(loopCommand))
		return ErrInboxFull
	}
}

// Submit dispatches e on the owner loop. Handler errors are logged.
func (d *Dispatcher) Submit(e Event) error {
	if !d.HasHandler(e.Command) {
		return unknown(e.Command)
	}
	return d.Post(func() {
		if _, err := d.Dispatch(e); err != nil {
			d.logger.Error("event failed", "command", e.Command, "error", err)
		}
	})
}

type reply struct {
	result any
	err    error
}

// Request dispatches e on the owner loop and waits for its result.
func (d *Dispatcher) Request(ctx context.Context, e Event) (any, error) {
	if !d.HasHandler(e.Command) {
		return nil, unknown(e.Command)
	}
	out := make(chan reply, 1)
	if err := d.Post(func() {
		result, err := d.Dispatch(e)
		out <- reply{result: result, err: err}
	}); err != nil {
		return nil, err
	}
	select {
	case r := <-out:
		return r.result, r.err
	case <-d.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}

// Close stops the workers of Buffered handlers after they have handled
// everything queued. Buffered handlers return ErrStopped afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, buf := range d.buffers {
			close(buf)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)
	attr := commandAttr(command)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, attr)
		}
	}()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrStopped
		}
		if blocking {
			buffer <- e
			return "queued", nil
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, attr)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))
		res, err := h(e)
		took := time.Since(start)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", took, "error", err)
			return res, err
		}
		d.logger.Debug("event complete", "command", command, "duration", took)
		return res, nil
	}
}
