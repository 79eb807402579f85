package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/texflow/internal/task"
)

var (
	// ErrScheduling matches every SchedulingError.
	ErrScheduling = errors.New("runner: scheduling failed")
	// ErrCircularDependency reports that no remaining task can become ready.
	ErrCircularDependency = errors.New("circular dependency")
	// ErrUnknownDependency reports a dependency that was never submitted.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrInvalidTask reports a task the runner cannot schedule as declared.
	ErrInvalidTask = errors.New("invalid task")
)

// SchedulingError reports a dependency-graph defect detected before or during
// a run. It always aborts the run.
type SchedulingError struct {
	Kind   error
	Tasks  []string
	Detail string
}

func (e *SchedulingError) Error() string {
	if e == nil {
		return ""
	}
	msg := "runner: " + e.Kind.Error()
	if len(e.Tasks) > 0 {
		msg += " among [" + strings.Join(e.Tasks, ", ") + "]"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SchedulingError) Unwrap() error { return e.Kind }

// Is lets errors.Is match ErrScheduling for every kind.
func (e *SchedulingError) Is(target error) bool {
	return target == ErrScheduling
}

// TaskError wraps the failure of a single task.
type TaskError struct {
	Task string
	Mode task.Mode
	Err  error
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("runner: task %s (%s) failed: %v", e.Task, e.Mode, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
