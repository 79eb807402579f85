package task

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transferable is implemented by tasks that can cross a process boundary.
// Spec returns the registered handler name and a self-contained payload.
type Transferable interface {
	Task
	Spec() (handler string, payload []byte, err error)
}

// Process is work expressed as a registered handler plus a serialisable
// payload. It runs in-process for inline and threaded modes and in a worker
// process for multiprocess mode.
type Process struct {
	Base
	Handler  string
	Payload  any
	registry *Registry
}

// NewProcess constructs a process-transferable task.
func NewProcess(handler string, payload any, opts ...Option) *Process {
	return &Process{
		Base:     newBase(handler, ModeMultiprocess, opts),
		Handler:  handler,
		Payload:  payload,
		registry: DefaultRegistry,
	}
}

// UseRegistry resolves the handler from reg instead of DefaultRegistry.
func (p *Process) UseRegistry(reg *Registry) *Process {
	if reg != nil {
		p.registry = reg
	}
	return p
}

// Spec implements Transferable.
func (p *Process) Spec() (string, []byte, error) {
	if p.Handler == "" {
		return "", nil, fmt.Errorf("task: %s has no handler", p.Name())
	}
	data, err := json.Marshal(p.Payload)
	if err != nil {
		return "", nil, fmt.Errorf("task: encode payload for %s: %w", p.Name(), err)
	}
	return p.Handler, data, nil
}

// Run implements Task.Run by invoking the handler in the current process.
// The payload still round-trips through JSON so both paths see the same input.
func (p *Process) Run(ctx context.Context) error {
	name, payload, err := p.Spec()
	if err != nil {
		return err
	}
	handler, err := p.registry.Lookup(name)
	if err != nil {
		return err
	}
	return handler(ctx, payload)
}
