package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingrea/texflow/internal/ctxlog"
	"github.com/kingrea/texflow/internal/procpool"
	"github.com/kingrea/texflow/internal/task"
)

// Runner drives a task graph to completion wave by wave.
type Runner struct {
	workers     int
	observer    Observer
	taskTimeout time.Duration
	procs       ProcessPool
	clock       func() time.Time
}

// New constructs a runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		workers:  defaultWorkers(),
		observer: NopObserver{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Workers reports the pool size shared by threaded and multiprocess tasks.
func (r *Runner) Workers() int {
	return r.workers
}

// Run executes every task, and transitively nothing else, respecting
// dependencies. It returns nil when all tasks succeeded, a *SchedulingError
// when the graph cannot be scheduled, or a *TaskError for the first task
// failure. No further wave starts after a failure.
func (r *Runner) Run(ctx context.Context, tasks []task.Task) error {
	plan, err := newPlan(tasks)
	if err != nil {
		return err
	}
	procs := r.procs
	if plan.needsProcesses() && procs == nil {
		pool, err := procpool.New()
		if err != nil {
			return fmt.Errorf("runner: process pool: %w", err)
		}
		procs = pool
	}
	logger := ctxlog.FromContext(ctx)
	pools := newPools(r.workers)
	started := r.clock()
	wave := 0
	for plan.pending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready := plan.ready()
		if len(ready) == 0 {
			return plan.cycleError()
		}
		if len(ready) == 1 && ready[0].Mode() == task.ModeInline {
			if err := r.execute(ctx, ready[0], ready[0].Run); err != nil {
				return err
			}
			plan.complete(ready)
			continue
		}
		wave++
		logger.Debug("wave started", slog.Int("wave", wave), slog.Int("tasks", len(ready)))
		r.observer.WaveStarted(wave, ready)
		if err := r.runWave(ctx, ready, pools, procs); err != nil {
			return err
		}
		plan.complete(ready)
	}
	logger.Info("tasks completed",
		slog.Int("tasks", plan.size()),
		slog.Duration("elapsed", r.clock().Sub(started)),
	)
	return nil
}

// execute runs one task with instrumentation and the optional timeout.
func (r *Runner) execute(ctx context.Context, t task.Task, fn func(context.Context) error) (err error) {
	logger := ctxlog.FromContext(ctx).With(slog.String("task", t.Name()), slog.String("mode", t.Mode().String()))
	runCtx := ctx
	if r.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.taskTimeout)
		defer cancel()
	}
	r.observer.TaskStarted(t)
	logger.Debug("task started")
	start := r.clock()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		elapsed := r.clock().Sub(start)
		if err != nil {
			logger.Error("task failed", slog.Duration("elapsed", elapsed), slog.Any("error", err))
			r.observer.TaskFailed(t, elapsed, err)
			err = &TaskError{Task: t.Name(), Mode: t.Mode(), Err: err}
			return
		}
		logger.Info("task finished", slog.Duration("elapsed", elapsed))
		r.observer.TaskFinished(t, elapsed)
	}()
	return fn(runCtx)
}
