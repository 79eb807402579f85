package task

// Option customizes the Base of a task at construction time.
type Option func(*Base)

// WithName overrides the task's default name.
func WithName(name string) Option {
	return func(b *Base) {
		if name != "" {
			b.name = name
		}
	}
}

// WithMode overrides the task's default execution mode.
func WithMode(mode Mode) Option {
	return func(b *Base) {
		b.mode = mode
	}
}

// DependsOn declares prerequisites that must complete before the task runs.
func DependsOn(deps ...Task) Option {
	return func(b *Base) {
		b.After(deps...)
	}
}

func newBase(name string, mode Mode, opts []Option) Base {
	b := NewBase(name, mode)
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}
