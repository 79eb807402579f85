// Package events streams task lifecycle events to a socket.io endpoint so
// an external dashboard can follow a build. The sink is best effort: a
// failed connection is logged and the build carries on without it.
package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/kingrea/texflow/internal/ctxlog"
	"github.com/kingrea/texflow/internal/runner"
	"github.com/kingrea/texflow/internal/task"
)

const (
	// EventTask carries one task status change.
	EventTask = "task"
	// EventWave announces the tasks of a new wave.
	EventWave = "wave"

	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"

	defaultDialTimeout = 10 * time.Second
)

// ErrConnect reports that the socket.io endpoint could not be reached.
var ErrConnect = errors.New("events: connect failed")

// Options configure Dial.
type Options struct {
	URL                string
	Namespace          string
	DialTimeout        time.Duration
	InsecureSkipVerify bool
}

// EmitFunc delivers one event with its payload.
type EmitFunc func(event string, payload map[string]any)

// Sink is a runner.Observer that forwards lifecycle events.
type Sink struct {
	mu     sync.Mutex
	emit   EmitFunc
	close  func()
	closed bool
}

// NewSink builds a sink around an arbitrary emitter.
func NewSink(emit EmitFunc) *Sink {
	return &Sink{emit: emit}
}

// Dial connects to a socket.io server and returns a sink bound to it.
func Dial(ctx context.Context, opts Options) (*Sink, error) {
	logger := ctxlog.FromContext(ctx).With("component", "events", "url", opts.URL)

	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %v", ErrConnect, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrConnect, parsed.Scheme)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	sopts := socket.DefaultOptions()
	if parsed.Path != "" && parsed.Path != "/" {
		sopts.SetPath(parsed.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), sopts)
	io := manager.Socket(namespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected", "sid", io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		err := errors.New("connect_error")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("%w: %v", ErrConnect, err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("%w: %v", ErrConnect, ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("%w: timed out after %s", ErrConnect, timeout)
	}

	s := NewSink(func(event string, payload map[string]any) {
		io.Emit(event, payload)
	})
	s.close = func() { io.Disconnect() }
	return s, nil
}

// Connect dials the endpoint and falls back to a no-op observer when the
// connection fails. The returned close func is always safe to call.
func Connect(ctx context.Context, opts Options) (runner.Observer, func()) {
	sink, err := Dial(ctx, opts)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Event sink disabled", "url", opts.URL, slog.Any("error", err))
		return runner.NopObserver{}, func() {}
	}
	return sink, sink.Close
}

// Close disconnects the sink. Later events are dropped.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.close != nil {
		s.close()
	}
}

func (s *Sink) WaveStarted(index int, ready []task.Task) {
	names := make([]string, len(ready))
	for i, t := range ready {
		names[i] = t.Name()
	}
	s.send(EventWave, map[string]any{"index": index, "tasks": names})
}

func (s *Sink) TaskStarted(t task.Task) {
	s.send(EventTask, TaskPayload(t, StatusStarted, 0, nil))
}

func (s *Sink) TaskFinished(t task.Task, elapsed time.Duration) {
	s.send(EventTask, TaskPayload(t, StatusFinished, elapsed, nil))
}

func (s *Sink) TaskFailed(t task.Task, elapsed time.Duration, err error) {
	s.send(EventTask, TaskPayload(t, StatusFailed, elapsed, err))
}

func (s *Sink) send(event string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.emit == nil {
		return
	}
	s.emit(event, payload)
}

// TaskPayload is the wire shape of a task event.
func TaskPayload(t task.Task, status string, elapsed time.Duration, err error) map[string]any {
	payload := map[string]any{
		"name":       t.Name(),
		"mode":       t.Mode().String(),
		"status":     status,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["error"] = nil
	}
	return payload
}
