package runner

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/kingrea/texflow/internal/task"
)

// plan owns the completed/remaining partition for one Run.
type plan struct {
	order     []task.Task
	remaining map[task.Task]struct{}
	completed map[task.Task]struct{}
}

func newPlan(tasks []task.Task) (*plan, error) {
	p := &plan{
		remaining: make(map[task.Task]struct{}, len(tasks)),
		completed: make(map[task.Task]struct{}, len(tasks)),
	}
	for i, t := range tasks {
		if isNil(t) {
			return nil, &SchedulingError{Kind: ErrInvalidTask, Detail: fmt.Sprintf("task %d is nil", i)}
		}
		if !reflect.TypeOf(t).Comparable() {
			return nil, &SchedulingError{Kind: ErrInvalidTask, Tasks: []string{t.Name()}, Detail: "task values must be comparable; use a pointer"}
		}
		if _, seen := p.remaining[t]; seen {
			continue
		}
		p.remaining[t] = struct{}{}
		p.order = append(p.order, t)
	}
	for _, t := range p.order {
		if err := validateMode(t); err != nil {
			return nil, err
		}
		for _, dep := range t.Dependencies() {
			if dep == nil {
				continue
			}
			if isNil(dep) {
				return nil, &SchedulingError{Kind: ErrInvalidTask, Tasks: []string{t.Name()}, Detail: fmt.Sprintf("%s has a nil %T dependency", t.Name(), dep)}
			}
			if !reflect.TypeOf(dep).Comparable() {
				return nil, &SchedulingError{Kind: ErrInvalidTask, Tasks: []string{t.Name()}, Detail: fmt.Sprintf("%s depends on a non-comparable %T", t.Name(), dep)}
			}
			if _, ok := p.remaining[dep]; !ok {
				return nil, &SchedulingError{
					Kind:   ErrUnknownDependency,
					Tasks:  []string{t.Name()},
					Detail: fmt.Sprintf("%s depends on %s which was not submitted", t.Name(), dep.Name()),
				}
			}
		}
	}
	return p, nil
}

// isNil reports a nil interface or an interface holding a nil pointer.
func isNil(t task.Task) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func validateMode(t task.Task) error {
	mode := t.Mode()
	if !mode.Valid() {
		return &SchedulingError{Kind: ErrInvalidTask, Tasks: []string{t.Name()}, Detail: fmt.Sprintf("unknown mode %d", int(mode))}
	}
	if mode == task.ModeMultiprocess {
		if _, ok := t.(task.Transferable); !ok {
			return &SchedulingError{
				Kind:   ErrInvalidTask,
				Tasks:  []string{t.Name()},
				Detail: fmt.Sprintf("%T cannot run in multiprocess mode", t),
			}
		}
	}
	return nil
}

func (p *plan) pending() bool {
	return len(p.remaining) > 0
}

func (p *plan) size() int {
	return len(p.order)
}

func (p *plan) needsProcesses() bool {
	for _, t := range p.order {
		if t.Mode() == task.ModeMultiprocess {
			return true
		}
	}
	return false
}

// ready returns remaining tasks whose dependencies have all completed, in
// submission order.
func (p *plan) ready() []task.Task {
	var ready []task.Task
	for _, t := range p.order {
		if _, ok := p.remaining[t]; !ok {
			continue
		}
		if len(p.blockers(t)) == 0 {
			ready = append(ready, t)
		}
	}
	return ready
}

func (p *plan) blockers(t task.Task) []task.Task {
	var blocked []task.Task
	for _, dep := range t.Dependencies() {
		if dep == nil {
			continue
		}
		if _, done := p.completed[dep]; !done {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

func (p *plan) complete(tasks []task.Task) {
	for _, t := range tasks {
		delete(p.remaining, t)
		p.completed[t] = struct{}{}
	}
}

func (p *plan) cycleError() error {
	var names []string
	var edges []string
	for _, t := range p.order {
		if _, ok := p.remaining[t]; !ok {
			continue
		}
		names = append(names, t.Name())
		for _, dep := range p.blockers(t) {
			edges = append(edges, t.Name()+" waits on "+dep.Name())
		}
	}
	sort.Strings(names)
	return &SchedulingError{
		Kind:   ErrCircularDependency,
		Tasks:  names,
		Detail: strings.Join(edges, "; "),
	}
}
