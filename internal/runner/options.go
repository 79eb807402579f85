package runner

import (
	"context"
	"runtime"
	"time"
)

// ProcessPool runs a registered handler in an isolated worker process.
type ProcessPool interface {
	Run(ctx context.Context, handler string, payload []byte) error
}

// Option customizes the runner instance.
type Option func(*Runner)

// WithWorkers bounds both the goroutine pool and the process pool. Values
// <= 0 fall back to runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithObserver registers an observer for task lifecycle events.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithTaskTimeout bounds the run time of every task. Zero disables the limit.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.taskTimeout = d
		}
	}
}

// WithProcessPool injects the pool used for multiprocess tasks. Without one
// the runner spawns workers from its own executable on first use.
func WithProcessPool(p ProcessPool) Option {
	return func(r *Runner) {
		if p != nil {
			r.procs = p
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func defaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}
