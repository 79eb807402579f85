package task

import (
	"context"
	"fmt"
)

// Func wraps an arbitrary function as a task. It bridges actions that have
// no dedicated variant; arguments are captured by the closure.
type Func struct {
	Base
	fn func(context.Context) error
}

// NewFunc constructs a function task.
func NewFunc(fn func(context.Context) error, opts ...Option) *Func {
	return &Func{
		Base: newBase("fn-task", ModeThreaded, opts),
		fn:   fn,
	}
}

// Run implements Task.Run.
func (f *Func) Run(ctx context.Context) error {
	if f.fn == nil {
		return fmt.Errorf("task: %s has no function", f.Name())
	}
	return f.fn(ctx)
}
