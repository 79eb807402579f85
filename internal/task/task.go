package task

import "context"

// Task is implemented by every unit of work the runner can schedule.
type Task interface {
	Name() string
	Mode() Mode
	Dependencies() []Task
	Run(ctx context.Context) error
}

// Base provides common plumbing for tasks (identity + dependency list).
type Base struct {
	name string
	mode Mode
	deps []Task
}

// NewBase seeds the helper with a name, mode and dependencies.
func NewBase(name string, mode Mode, deps ...Task) Base {
	b := Base{name: name, mode: mode}
	b.After(deps...)
	return b
}

// After declares additional prerequisites. Nil entries are ignored.
func (b *Base) After(deps ...Task) {
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		b.deps = append(b.deps, dep)
	}
}

// SetMode overrides the execution mode.
func (b *Base) SetMode(mode Mode) {
	b.mode = mode
}

// Name implements Task.Name.
func (b *Base) Name() string {
	return b.name
}

// Mode implements Task.Mode.
func (b *Base) Mode() Mode {
	return b.mode
}

// Dependencies implements Task.Dependencies.
func (b *Base) Dependencies() []Task {
	return append([]Task{}, b.deps...)
}
