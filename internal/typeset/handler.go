package typeset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kingrea/texflow/internal/task"
)

// HandlerName identifies the pipeline in a task.Registry.
const HandlerName = "typeset.pipeline"

// RegisterHandlers installs the pipeline handler so worker processes can run it.
func RegisterHandlers(reg *task.Registry) error {
	return reg.Register(HandlerName, func(ctx context.Context, payload json.RawMessage) error {
		var p Pipeline
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("typeset: decode pipeline: %w", err)
		}
		return p.Run(ctx)
	})
}

// NewTask wraps the pipeline in a process-transferable task named "compile".
func NewTask(p *Pipeline, opts ...task.Option) *task.Process {
	opts = append([]task.Option{task.WithName("compile")}, opts...)
	return task.NewProcess(HandlerName, p, opts...)
}
