package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/texflow/internal/procpool"
	"github.com/kingrea/texflow/internal/task"
)

var workerRegistry = func() *task.Registry {
	reg := task.NewRegistry()
	reg.MustRegister("write-pid", func(_ context.Context, raw json.RawMessage) error {
		var path string
		if err := json.Unmarshal(raw, &path); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
	})
	reg.MustRegister("fail", func(context.Context, json.RawMessage) error {
		return errors.New("worker boom")
	})
	reg.MustRegister("meet", func(ctx context.Context, raw json.RawMessage) error {
		var p peerPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		start := time.Now().UnixNano()
		if err := touch(filepath.Join(p.Dir, p.Self+".start")); err != nil {
			return err
		}
		if err := waitForFile(ctx, filepath.Join(p.Dir, p.Peer+".start")); err != nil {
			return err
		}
		end := time.Now().UnixNano()
		return os.WriteFile(filepath.Join(p.Dir, p.Self+".interval"), []byte(fmt.Sprintf("%d %d", start, end)), 0o644)
	})
	reg.MustRegister("await", func(ctx context.Context, raw json.RawMessage) error {
		var p peerPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		if err := touch(filepath.Join(p.Dir, p.Self+".start")); err != nil {
			return err
		}
		if err := waitForFile(ctx, filepath.Join(p.Dir, p.Peer+".done")); err != nil {
			return err
		}
		return appendLine(filepath.Join(p.Dir, "order.log"), p.Self)
	})
	return reg
}()

// peerPayload names a worker and the sibling it synchronises with through
// marker files in Dir.
type peerPayload struct {
	Dir  string `json:"dir"`
	Self string `json:"self"`
	Peer string `json:"peer"`
}

func touch(path string) error {
	return os.WriteFile(path, nil, 0o644)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// waitForFile polls until path exists. It gives up after ten seconds so a
// serialised sibling shows up as an error rather than a hang.
func waitForFile(ctx context.Context, path string) error {
	deadline := time.After(10 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for %s", filepath.Base(path))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func readInterval(t *testing.T, path string) (start, end int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = fmt.Sscanf(string(data), "%d %d", &start, &end)
	require.NoError(t, err)
	require.LessOrEqual(t, start, end)
	return start, end
}

func TestMain(m *testing.M) {
	if procpool.IsWorker() {
		if err := procpool.Serve(context.Background(), workerRegistry, os.Stdin, os.Stdout); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testPool() *procpool.Pool {
	return &procpool.Pool{Executable: os.Args[0], Args: []string{"-test.run=^$"}}
}

// recordingTask appends its name to a shared log when it runs.
func recordingTask(name string, mode task.Mode, log *orderLog, deps ...task.Task) *task.Func {
	return task.NewFunc(func(context.Context) error {
		log.add(name)
		return nil
	}, task.WithName(name), task.WithMode(mode), task.DependsOn(deps...))
}

type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *orderLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.names...)
}

func (l *orderLog) index(name string) int {
	for i, n := range l.snapshot() {
		if n == name {
			return i
		}
	}
	return -1
}

func TestRunCompletesDiamond(t *testing.T) {
	log := &orderLog{}
	root := recordingTask("root", task.ModeInline, log)
	left := recordingTask("left", task.ModeThreaded, log, root)
	right := recordingTask("right", task.ModeThreaded, log, root)
	join := recordingTask("join", task.ModeInline, log, left, right)

	rec := NewRecorder()
	err := New(WithWorkers(4), WithObserver(rec)).Run(context.Background(), []task.Task{join, right, left, root})
	require.NoError(t, err)
	require.Len(t, log.snapshot(), 4)
	require.Equal(t, 0, log.index("root"))
	require.Equal(t, 3, log.index("join"))
	require.ElementsMatch(t, []string{"root", "left", "right", "join"}, rec.Completed())
}

func TestRunChainsInlineTasksInOrder(t *testing.T) {
	log := &orderLog{}
	a := recordingTask("a", task.ModeInline, log)
	b := recordingTask("b", task.ModeInline, log, a)
	c := recordingTask("c", task.ModeInline, log, b)

	require.NoError(t, New().Run(context.Background(), []task.Task{c, b, a}))
	if diff := cmp.Diff([]string{"a", "b", "c"}, log.snapshot()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunEmptyIsNoop(t *testing.T) {
	require.NoError(t, New().Run(context.Background(), nil))
}

func TestRunCollapsesDuplicateSubmissions(t *testing.T) {
	var calls atomic.Int32
	once := task.NewFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}, task.WithName("once"))
	require.NoError(t, New().Run(context.Background(), []task.Task{once, once}))
	require.Equal(t, int32(1), calls.Load())
}

func TestRunDetectsCycle(t *testing.T) {
	log := &orderLog{}
	a := recordingTask("a", task.ModeThreaded, log)
	b := recordingTask("b", task.ModeThreaded, log, a)
	a.After(b)

	err := New().Run(context.Background(), []task.Task{a, b})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrScheduling)
	require.ErrorIs(t, err, ErrCircularDependency)
	var serr *SchedulingError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, []string{"a", "b"}, serr.Tasks)
	require.Empty(t, log.snapshot())
}

func TestRunDetectsSelfDependency(t *testing.T) {
	log := &orderLog{}
	a := recordingTask("a", task.ModeInline, log)
	a.After(a)
	err := New().Run(context.Background(), []task.Task{a})
	require.ErrorIs(t, err, ErrCircularDependency)
	require.Empty(t, log.snapshot())
}

func TestRunCycleAfterProgress(t *testing.T) {
	log := &orderLog{}
	start := recordingTask("start", task.ModeInline, log)
	a := recordingTask("a", task.ModeThreaded, log, start)
	b := recordingTask("b", task.ModeThreaded, log, a)
	a.After(b)

	err := New().Run(context.Background(), []task.Task{start, a, b})
	require.ErrorIs(t, err, ErrCircularDependency)
	require.Equal(t, []string{"start"}, log.snapshot())
}

func TestRunRejectsUnknownDependency(t *testing.T) {
	log := &orderLog{}
	outside := recordingTask("outside", task.ModeInline, log)
	inside := recordingTask("inside", task.ModeInline, log, outside)

	err := New().Run(context.Background(), []task.Task{inside})
	require.ErrorIs(t, err, ErrScheduling)
	require.ErrorIs(t, err, ErrUnknownDependency)
	require.Contains(t, err.Error(), "outside")
	require.Empty(t, log.snapshot())
}

func TestRunRejectsNilTask(t *testing.T) {
	err := New().Run(context.Background(), []task.Task{nil})
	require.ErrorIs(t, err, ErrInvalidTask)
}

func TestRunRejectsNilDependency(t *testing.T) {
	log := &orderLog{}
	child := recordingTask("child", task.ModeInline, log, (*task.Func)(nil))
	var err error
	require.NotPanics(t, func() {
		err = New().Run(context.Background(), []task.Task{child})
	})
	require.ErrorIs(t, err, ErrScheduling)
	require.ErrorIs(t, err, ErrInvalidTask)
	var serr *SchedulingError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, []string{"child"}, serr.Tasks)
	require.Empty(t, log.snapshot())
}

// valueTask implements task.Task on a non-comparable value type.
type valueTask struct{ tags []string }

func (valueTask) Name() string                { return "value" }
func (valueTask) Mode() task.Mode             { return task.ModeInline }
func (valueTask) Dependencies() []task.Task   { return nil }
func (valueTask) Run(context.Context) error   { return nil }

func TestRunRejectsNonComparableTasks(t *testing.T) {
	err := New().Run(context.Background(), []task.Task{valueTask{}})
	require.ErrorIs(t, err, ErrInvalidTask)

	log := &orderLog{}
	child := recordingTask("child", task.ModeInline, log, valueTask{tags: []string{"x"}})
	require.NotPanics(t, func() {
		err = New().Run(context.Background(), []task.Task{child})
	})
	require.ErrorIs(t, err, ErrInvalidTask)
	require.Contains(t, err.Error(), "non-comparable")
	require.Empty(t, log.snapshot())
}

func TestRunRejectsNonTransferableMultiprocessTask(t *testing.T) {
	log := &orderLog{}
	fn := recordingTask("fn", task.ModeMultiprocess, log)
	err := New().Run(context.Background(), []task.Task{fn})
	require.ErrorIs(t, err, ErrInvalidTask)
	require.ErrorIs(t, err, ErrScheduling)
	require.Empty(t, log.snapshot())
}

func TestThreadedTasksOverlap(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	both := make(chan struct{})
	go func() {
		started.Wait()
		close(both)
	}()
	rendezvous := func(context.Context) error {
		started.Done()
		select {
		case <-both:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling never started")
		}
	}
	a := task.NewFunc(rendezvous, task.WithName("a"))
	b := task.NewFunc(rendezvous, task.WithName("b"))
	require.NoError(t, New(WithWorkers(2)).Run(context.Background(), []task.Task{a, b}))
}

func TestSingleWorkerSerialisesThreadedTasks(t *testing.T) {
	var active, peak atomic.Int32
	work := func(context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	var tasks []task.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, task.NewFunc(work, task.WithName(fmt.Sprintf("t%d", i))))
	}
	require.NoError(t, New(WithWorkers(1)).Run(context.Background(), tasks))
	require.Equal(t, int32(1), peak.Load())
}

func TestInlineTaskRunsAlongsideThreadedWave(t *testing.T) {
	threadedStarted := make(chan struct{})
	threaded := task.NewFunc(func(context.Context) error {
		close(threadedStarted)
		return nil
	}, task.WithName("threaded"))
	inline := task.NewFunc(func(context.Context) error {
		select {
		case <-threadedStarted:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("threaded task did not run concurrently")
		}
	}, task.WithName("inline"), task.WithMode(task.ModeInline))
	require.NoError(t, New().Run(context.Background(), []task.Task{inline, threaded}))
}

func TestFirstFailureAbortsRun(t *testing.T) {
	log := &orderLog{}
	boom := errors.New("boom")
	bad := task.NewFunc(func(context.Context) error { return boom }, task.WithName("bad"))
	good := recordingTask("good", task.ModeThreaded, log)
	after := recordingTask("after", task.ModeInline, log, bad, good)

	rec := NewRecorder()
	err := New(WithObserver(rec)).Run(context.Background(), []task.Task{bad, good, after})
	require.ErrorIs(t, err, boom)
	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "bad", terr.Task)
	require.Equal(t, task.ModeThreaded, terr.Mode)
	require.NotContains(t, log.snapshot(), "after")

	var failed []string
	for _, e := range rec.Events() {
		if e.Kind == EventFailed {
			failed = append(failed, e.Task)
		}
	}
	require.Equal(t, []string{"bad"}, failed)
}

func TestFailureCancelsSiblings(t *testing.T) {
	bad := task.NewFunc(func(context.Context) error { return errors.New("boom") }, task.WithName("bad"))
	slow := task.NewFunc(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(30 * time.Second):
			return nil
		}
	}, task.WithName("slow"))
	start := time.Now()
	err := New(WithWorkers(2)).Run(context.Background(), []task.Task{bad, slow})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestTaskTimeout(t *testing.T) {
	slow := task.NewFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, task.WithName("slow"), task.WithMode(task.ModeInline))
	err := New(WithTaskTimeout(50*time.Millisecond)).Run(context.Background(), []task.Task{slow})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPanicBecomesTaskError(t *testing.T) {
	p := task.NewFunc(func(context.Context) error { panic("oops") }, task.WithName("panicky"))
	err := New().Run(context.Background(), []task.Task{p})
	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	require.Contains(t, err.Error(), "oops")
}

func TestRunHonoursCancelledContext(t *testing.T) {
	log := &orderLog{}
	a := recordingTask("a", task.ModeInline, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().Run(ctx, []task.Task{a})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, log.snapshot())
}

func TestObserverReceivesTimingFromClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	log := &orderLog{}
	a := recordingTask("a", task.ModeInline, log)
	b := recordingTask("b", task.ModeInline, log, a)
	first, second := NewRecorder(), NewRecorder()

	require.NoError(t, New(WithClock(clock), WithObserver(Observers{first, second})).Run(context.Background(), []task.Task{a, b}))
	for _, rec := range []*Recorder{first, second} {
		var kinds []EventKind
		for _, e := range rec.Events() {
			kinds = append(kinds, e.Kind)
			if e.Kind == EventFinished {
				require.Equal(t, time.Second, e.Elapsed)
			}
		}
		require.Equal(t, []EventKind{EventStarted, EventFinished, EventStarted, EventFinished}, kinds)
	}
}

func TestMultiprocessTasksRunInChildProcesses(t *testing.T) {
	dir := t.TempDir()
	var tasks []task.Task
	var paths []string
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("pid-%d", i))
		paths = append(paths, path)
		tasks = append(tasks, task.NewProcess("write-pid", path, task.WithName(fmt.Sprintf("proc-%d", i))))
	}
	require.NoError(t, New(WithWorkers(2), WithProcessPool(testPool())).Run(context.Background(), tasks))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		pid, err := strconv.Atoi(string(data))
		require.NoError(t, err)
		require.NotEqual(t, os.Getpid(), pid)
	}
}

func TestMultiprocessTasksOverlap(t *testing.T) {
	dir := t.TempDir()
	a := task.NewProcess("meet", peerPayload{Dir: dir, Self: "a", Peer: "b"}, task.WithName("proc-a"))
	b := task.NewProcess("meet", peerPayload{Dir: dir, Self: "b", Peer: "a"}, task.WithName("proc-b"))

	require.NoError(t, New(WithWorkers(2), WithProcessPool(testPool())).Run(context.Background(), []task.Task{a, b}))
	startA, endA := readInterval(t, filepath.Join(dir, "a.interval"))
	startB, endB := readInterval(t, filepath.Join(dir, "b.interval"))
	require.Less(t, startA, endB, "a started after b finished")
	require.Less(t, startB, endA, "b started after a finished")
}

func TestThreadedAndMultiprocessShareAWave(t *testing.T) {
	dir := t.TempDir()
	orderPath := filepath.Join(dir, "order.log")
	threaded := task.NewFunc(func(ctx context.Context) error {
		if err := waitForFile(ctx, filepath.Join(dir, "proc.start")); err != nil {
			return err
		}
		if err := appendLine(orderPath, "threaded"); err != nil {
			return err
		}
		return touch(filepath.Join(dir, "threaded.done"))
	}, task.WithName("threaded"))
	proc := task.NewProcess("await", peerPayload{Dir: dir, Self: "proc", Peer: "threaded"}, task.WithName("proc"))
	join := task.NewFunc(func(context.Context) error {
		return appendLine(orderPath, "join")
	}, task.WithName("join"), task.WithMode(task.ModeInline), task.DependsOn(threaded, proc))

	rec := NewRecorder()
	err := New(WithWorkers(2), WithObserver(rec), WithProcessPool(testPool())).Run(context.Background(), []task.Task{threaded, proc, join})
	require.NoError(t, err)

	data, err := os.ReadFile(orderPath)
	require.NoError(t, err)
	if diff := cmp.Diff("threaded\nproc\njoin\n", string(data)); diff != "" {
		t.Fatalf("completion order mismatch (-want +got):\n%s", diff)
	}
	waves := map[string]int{}
	for _, e := range rec.Events() {
		if e.Kind == EventStarted {
			waves[e.Task] = e.Wave
		}
	}
	require.NotZero(t, waves["threaded"])
	require.Equal(t, waves["threaded"], waves["proc"])
}

func TestConcurrentRunsKeepDefaultPoolLocal(t *testing.T) {
	dir := t.TempDir()
	r := New(WithWorkers(2))
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc := task.NewProcess("write-pid", filepath.Join(dir, fmt.Sprintf("run-%d", i)), task.WithName("proc"))
			errs[i] = r.Run(context.Background(), []task.Task{proc})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "run %d", i)
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("run-%d", i)))
		require.NoError(t, err)
	}
	require.Nil(t, r.procs)
}

func TestMultiprocessFailureSurfacesAsTaskError(t *testing.T) {
	proc := task.NewProcess("fail", nil)
	err := New(WithProcessPool(testPool())).Run(context.Background(), []task.Task{proc})
	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, task.ModeMultiprocess, terr.Mode)
	require.ErrorIs(t, err, procpool.ErrWorker)
	require.Contains(t, err.Error(), "worker boom")
}

type fakeRenderer struct{ text string }

func (f fakeRenderer) Render(data map[string]any) (string, error) {
	return fmt.Sprintf(f.text, data["title"]), nil
}

func TestBuildShapedGraph(t *testing.T) {
	root := t.TempDir()
	build := filepath.Join(root, "build")
	images := filepath.Join(root, "images")
	plots := filepath.Join(root, "plots")
	for _, dir := range []string{build, images, plots} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(build, "main.pdf"), []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(images, "logo.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(plots, "fig.pdf"), []byte("pdf"), 0o644))

	clean := task.NewClean(build, task.WithMode(task.ModeInline))
	render := task.NewRender(fakeRenderer{text: "\\title{%v}"}, map[string]any{"title": "Report"}, filepath.Join(build, "main.tex"), task.DependsOn(clean))
	copyImages := task.NewCopy(task.PathSource(images), filepath.Join(build, "images"), task.WithName("copy-images"), task.DependsOn(clean))
	copyPlots := task.NewCopy(task.PathSource(plots), filepath.Join(build, "plots"), task.WithName("copy-plots"), task.DependsOn(clean))
	var compiled atomic.Bool
	compile := task.NewFunc(func(context.Context) error {
		for _, rel := range []string{"main.tex", "images/logo.png", "plots/fig.pdf"} {
			if _, err := os.Stat(filepath.Join(build, rel)); err != nil {
				return err
			}
		}
		if _, err := os.Stat(filepath.Join(build, "main.pdf")); !os.IsNotExist(err) {
			return fmt.Errorf("stale output survived clean")
		}
		compiled.Store(true)
		return nil
	}, task.WithName("compile"), task.WithMode(task.ModeInline), task.DependsOn(clean, render, copyImages, copyPlots))

	rec := NewRecorder()
	err := New(WithObserver(rec)).Run(context.Background(), []task.Task{compile, copyPlots, copyImages, render, clean})
	require.NoError(t, err)
	require.True(t, compiled.Load())
	completed := rec.Completed()
	require.Equal(t, "clean-build", completed[0])
	require.Equal(t, "compile", completed[len(completed)-1])
	data, err := os.ReadFile(filepath.Join(build, "main.tex"))
	require.NoError(t, err)
	require.Equal(t, "\\title{Report}", string(data))
}
