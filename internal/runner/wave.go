package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kingrea/texflow/internal/task"
)

// pools bound the concurrency of threaded and multiprocess batches. They are
// created once per Run and reused by every wave.
type pools struct {
	threads   *semaphore.Weighted
	processes *semaphore.Weighted
}

func newPools(workers int) *pools {
	if workers <= 0 {
		workers = 1
	}
	return &pools{
		threads:   semaphore.NewWeighted(int64(workers)),
		processes: semaphore.NewWeighted(int64(workers)),
	}
}

// groupByMode partitions the ready set preserving submission order.
func groupByMode(ready []task.Task) map[task.Mode][]task.Task {
	groups := make(map[task.Mode][]task.Task, len(task.Modes))
	for _, t := range ready {
		groups[t.Mode()] = append(groups[t.Mode()], t)
	}
	return groups
}

// runWave dispatches every mode group of the ready set and waits for all of
// them. The first failure cancels the wave context; the barrier still waits
// for in-flight siblings before the error is returned.
func (r *Runner) runWave(ctx context.Context, ready []task.Task, p *pools, procs ProcessPool) error {
	waveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(waveCtx)
	groups := groupByMode(ready)
	for _, t := range groups[task.ModeThreaded] {
		g.Go(func() error {
			if err := p.threads.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.threads.Release(1)
			return r.execute(gctx, t, t.Run)
		})
	}
	for _, t := range groups[task.ModeMultiprocess] {
		g.Go(func() error {
			if err := p.processes.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.processes.Release(1)
			return r.execute(gctx, t, remote(procs, t))
		})
	}
	var inlineErr error
	for _, t := range groups[task.ModeInline] {
		if err := gctx.Err(); err != nil {
			break
		}
		if err := r.execute(gctx, t, t.Run); err != nil {
			inlineErr = err
			cancel()
			break
		}
	}
	err := g.Wait()
	if inlineErr != nil {
		return inlineErr
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// remote ships a transferable task to the process pool.
func remote(procs ProcessPool, t task.Task) func(context.Context) error {
	return func(ctx context.Context) error {
		tt := t.(task.Transferable)
		handler, payload, err := tt.Spec()
		if err != nil {
			return err
		}
		return procs.Run(ctx, handler, payload)
	}
}
