package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func newDispatcher(t *testing.T, inbox int) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger, inbox)
	require.NoError(t, err)
	return d, logger
}

// running starts the owner loop for the duration of the test.
func running(t *testing.T, d *Dispatcher) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	return ctx
}

func TestDispatch(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	d.Register("recenter", func(e Event) (any, error) {
		return "zoom:" + e.Args[0], nil
	})

	res, err := d.Dispatch(Event{Command: "recenter", Args: []string{"17"}})
	require.NoError(t, err)
	assert.Equal(t, "zoom:17", res)
	assert.True(t, d.HasHandler("recenter"))
	assert.False(t, d.HasHandler("focus"))

	_, err = d.Dispatch(Event{Command: "focus"})
	assert.ErrorContains(t, err, "unknown command: focus")
}

func TestLogged(t *testing.T) {
	d, logger := newDispatcher(t, 0)
	d.Register("select", func(Event) (any, error) { return nil, nil }, Logged())
	d.Register("focus", func(Event) (any, error) { return nil, errors.New("no members") }, Logged())

	_, _ = d.Dispatch(Event{Command: "select", Args: []string{"m-1"}})
	assert.Equal(t, 2, logger.count("DEBUG"))

	_, err := d.Dispatch(Event{Command: "focus"})
	assert.EqualError(t, err, "no members")
	assert.Equal(t, 1, logger.count("ERROR event failed"))
}

func TestBuffered_RunsOffCaller(t *testing.T) {
	d, _ := newDispatcher(t, 0)

	var mu sync.Mutex
	var got []any
	d.Register("sample", func(e Event) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Payload)
		return nil, nil
	}, Buffered(8), Logged())

	for i := range 3 {
		res, err := d.Dispatch(Event{Command: "sample", Payload: i})
		require.NoError(t, err)
		assert.Equal(t, "queued", res)
	}
	d.Close()

	assert.Equal(t, []any{0, 1, 2}, got)

	_, err := d.Dispatch(Event{Command: "sample"})
	assert.ErrorIs(t, err, ErrStopped)
	d.Close()
}

func TestBuffered_DropsWhenFull(t *testing.T) {
	d, logger := newDispatcher(t, 0)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("route", func(Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil, errors.New("backend down")
	}, Buffered(1))

	_, err := d.Dispatch(Event{Command: "route"})
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Event{Command: "route"})
	require.NoError(t, err)

	_, err = d.Dispatch(Event{Command: "route"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	d.Close()
	assert.Equal(t, 2, logger.count("ERROR buffered event failed"))
}

func TestBuffered_Blocking(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	release := make(chan struct{})
	d.Register("hint", func(Event) (any, error) {
		<-release
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: "hint"})
	_, _ = d.Dispatch(Event{Command: "hint"})

	third := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Event{Command: "hint"})
		close(third)
	}()

	select {
	case <-third:
		t.Fatal("dispatch did not wait for room")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-third
	d.Close()
}

func TestRun_SerializesPostedWork(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	running(t, d)

	var order []int
	var wg sync.WaitGroup
	wg.Add(50)
	for i := range 50 {
		require.NoError(t, d.Post(func() {
			order = append(order, i)
			wg.Done()
		}))
	}
	wg.Wait()

	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestRequestAndSubmit(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	hints := make(chan any, 1)
	d.Register("status", func(Event) (any, error) { return "groups", nil })
	d.Register("hint", func(e Event) (any, error) {
		hints <- e.Payload
		return nil, nil
	})
	ctx := running(t, d)

	res, err := d.Request(ctx, Event{Command: "status"})
	require.NoError(t, err)
	assert.Equal(t, "groups", res)

	_, err = d.Request(ctx, Event{Command: "nope"})
	assert.Error(t, err)
	assert.Error(t, d.Submit(Event{Command: "nope"}))

	require.NoError(t, d.Submit(Event{Command: "hint", Payload: "gate-4"}))
	select {
	case p := <-hints:
		assert.Equal(t, "gate-4", p)
	case <-time.After(time.Second):
		t.Fatal("submitted event not handled")
	}
}

func TestRequest_ContextDone(t *testing.T) {
	d, _ := newDispatcher(t, 0)
	d.Register("status", func(Event) (any, error) { return nil, nil })

	// Not running: the request sits in the inbox until ctx expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Request(ctx, Event{Command: "status"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPost_Errors(t *testing.T) {
	t.Run("inbox full", func(t *testing.T) {
		d, _ := newDispatcher(t, 1)
		require.NoError(t, d.Post(func() {}))
		assert.ErrorIs(t, d.Post(func() {}), ErrInboxFull)
	})
	t.Run("after stop", func(t *testing.T) {
		d, _ := newDispatcher(t, 0)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- d.Run(ctx) }()
		cancel()

		assert.ErrorIs(t, <-errCh, context.Canceled)
		assert.ErrorIs(t, d.Post(func() {}), ErrStopped)
		assert.ErrorIs(t, d.Run(context.Background()), ErrStopped)
	})
}

func TestRun_RecoversPanic(t *testing.T) {
	d, logger := newDispatcher(t, 0)
	running(t, d)

	done := make(chan struct{})
	require.NoError(t, d.Post(func() { panic("boom") }))
	require.NoError(t, d.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after panic")
	}
	assert.Equal(t, 1, logger.count("ERROR loop task panicked"))
}
