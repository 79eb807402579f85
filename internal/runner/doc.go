// Package runner executes a set of tasks to completion in dependency order.
//
// Execution proceeds in waves. Each wave collects every remaining task whose
// dependencies have completed, groups the ready set by execution mode and
// dispatches each group as one batch: inline tasks run on the caller's
// goroutine, threaded tasks share a bounded goroutine pool and multiprocess
// tasks share a bounded pool of worker processes. A wave ends when every
// batch has finished. A wave with nothing ready is a dependency defect and
// fails the run instead of spinning.
//
// When the entire ready set is a single inline task it runs immediately and
// the loop re-evaluates readiness without waiting for a full wave.
//
// The completed/remaining partition is owned by the Run loop and only
// changes between waves; tasks never see it.
package runner
