package runner

import (
	"sync"
	"time"

	"github.com/kingrea/texflow/internal/task"
)

// Observer receives task lifecycle events. Methods may be called from
// several goroutines at once during a wave.
type Observer interface {
	WaveStarted(index int, ready []task.Task)
	TaskStarted(t task.Task)
	TaskFinished(t task.Task, elapsed time.Duration)
	TaskFailed(t task.Task, elapsed time.Duration, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) WaveStarted(int, []task.Task) {}
func (NopObserver) TaskStarted(task.Task) {}
func (NopObserver) TaskFinished(task.Task, time.Duration) {}
func (NopObserver) TaskFailed(task.Task, time.Duration, error) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (os Observers) WaveStarted(index int, ready []task.Task) {
	for _, o := range os {
		o.WaveStarted(index, ready)
	}
}

func (os Observers) TaskStarted(t task.Task) {
	for _, o := range os {
		o.TaskStarted(t)
	}
}

func (os Observers) TaskFinished(t task.Task, elapsed time.Duration) {
	for _, o := range os {
		o.TaskFinished(t, elapsed)
	}
}

func (os Observers) TaskFailed(t task.Task, elapsed time.Duration, err error) {
	for _, o := range os {
		o.TaskFailed(t, elapsed, err)
	}
}

// EventKind enumerates recorded lifecycle events.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventFinished EventKind = "finished"
	EventFailed   EventKind = "failed"
)

// Event is one recorded lifecycle transition.
type Event struct {
	Task    string
	Kind    EventKind
	Wave    int
	At      time.Time
	Elapsed time.Duration
	Err     error
}

// Recorder keeps an ordered log of lifecycle events.
type Recorder struct {
	mu     sync.Mutex
	clock  func() time.Time
	wave   int
	events []Event
}

// NewRecorder returns an empty recorder using the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{clock: time.Now}
}

func (r *Recorder) WaveStarted(index int, _ []task.Task) {
	r.mu.Lock()
	r.wave = index
	r.mu.Unlock()
}

func (r *Recorder) TaskStarted(t task.Task) {
	r.add(Event{Task: t.Name(), Kind: EventStarted})
}

func (r *Recorder) TaskFinished(t task.Task, elapsed time.Duration) {
	r.add(Event{Task: t.Name(), Kind: EventFinished, Elapsed: elapsed})
}

func (r *Recorder) TaskFailed(t task.Task, elapsed time.Duration, err error) {
	r.add(Event{Task: t.Name(), Kind: EventFailed, Elapsed: elapsed, Err: err})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Wave = r.wave
	e.At = r.clock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Completed returns the names of finished tasks in completion order.
func (r *Recorder) Completed() []string {
	var names []string
	for _, e := range r.Events() {
		if e.Kind == EventFinished {
			names = append(names, e.Task)
		}
	}
	return names
}
