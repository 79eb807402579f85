package task

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseModeAcceptsAliases(t *testing.T) {
	cases := map[string]Mode{
		"inline":       ModeInline,
		"chain":        ModeInline,
		"Threaded":     ModeThreaded,
		"thread":       ModeThreaded,
		"multiprocess": ModeMultiprocess,
		" process ":    ModeMultiprocess,
	}
	for input, want := range cases {
		got, err := ParseMode(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", input, got, want)
		}
	}
	if _, err := ParseMode("fibre"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if Mode(7).Valid() {
		t.Fatalf("mode 7 must be invalid")
	}
}

func TestModeTextRoundTrip(t *testing.T) {
	var cfg struct {
		Mode Mode `json:"mode"`
	}
	if err := json.Unmarshal([]byte(`{"mode":"process"}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Mode != ModeMultiprocess {
		t.Fatalf("got %s", cfg.Mode)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"mode":"multiprocess"}` {
		t.Fatalf("unexpected json %s", data)
	}
}

func TestBaseOptionsAndDependencies(t *testing.T) {
	clean := NewClean("build", WithMode(ModeInline))
	render := NewRender(nil, nil, "out", WithName("render"), DependsOn(clean, nil))
	if clean.Name() != "clean-build" || clean.Mode() != ModeInline {
		t.Fatalf("unexpected clean identity %s/%s", clean.Name(), clean.Mode())
	}
	if render.Name() != "render" || render.Mode() != ModeThreaded {
		t.Fatalf("unexpected render identity %s/%s", render.Name(), render.Mode())
	}
	deps := render.Dependencies()
	if len(deps) != 1 || deps[0] != Task(clean) {
		t.Fatalf("expected single clean dependency, got %v", deps)
	}
	deps[0] = nil
	if render.Dependencies()[0] == nil {
		t.Fatalf("Dependencies must return a copy")
	}
}

type staticRenderer struct {
	text string
	err  error
}

func (s staticRenderer) Render(data map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.ReplaceAll(s.text, "NAME", data["name"].(string)), nil
}

func TestRenderWritesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "build", "main.tex")
	task := NewRender(staticRenderer{text: "hello NAME"}, map[string]any{"name": "Ada"}, out)
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "hello Ada" {
		t.Fatalf("unexpected output %q err=%v", data, err)
	}
}

func TestRenderPropagatesTemplateErrors(t *testing.T) {
	boom := errors.New("undefined variable")
	task := NewRender(staticRenderer{err: boom}, nil, filepath.Join(t.TempDir(), "main.tex"))
	if err := task.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected template error, got %v", err)
	}
}

func TestRenderUnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeTestFile(t, blocker, "x")
	task := NewRender(staticRenderer{text: "x"}, nil, filepath.Join(blocker, "main.tex"))
	var fsErr *FilesystemError
	if err := task.Run(context.Background()); !errors.As(err, &fsErr) {
		t.Fatalf("expected FilesystemError, got %v", err)
	}
}

func TestFuncInvokesWrappedFunction(t *testing.T) {
	var got []string
	args := []string{"xelatex", "main.tex"}
	fn := NewFunc(func(ctx context.Context) error {
		got = append(got, args...)
		return nil
	}, WithName("compile"), WithMode(ModeInline))
	if err := fn.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Join(got, " ") != "xelatex main.tex" {
		t.Fatalf("unexpected args %v", got)
	}
	if err := NewFunc(nil).Run(context.Background()); err == nil {
		t.Fatalf("nil function must fail")
	}
}

func TestProcessRunsRegisteredHandlerInProcess(t *testing.T) {
	reg := NewRegistry()
	var seen map[string]string
	reg.MustRegister("echo", func(_ context.Context, payload json.RawMessage) error {
		return json.Unmarshal(payload, &seen)
	})
	proc := NewProcess("echo", map[string]string{"dir": "build"}).UseRegistry(reg)
	if proc.Mode() != ModeMultiprocess {
		t.Fatalf("process tasks default to multiprocess, got %s", proc.Mode())
	}
	if err := proc.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if seen["dir"] != "build" {
		t.Fatalf("payload not delivered: %v", seen)
	}
	handler, payload, err := proc.Spec()
	if err != nil || handler != "echo" || string(payload) != `{"dir":"build"}` {
		t.Fatalf("unexpected spec %s %s %v", handler, payload, err)
	}

	missing := NewProcess("missing", nil).UseRegistry(reg)
	if err := missing.Run(context.Background()); err == nil {
		t.Fatalf("unknown handler must fail")
	}
	bad := NewProcess("echo", func() {}).UseRegistry(reg)
	if _, _, err := bad.Spec(); err == nil {
		t.Fatalf("unserialisable payload must fail")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, json.RawMessage) error { return nil }
	if err := reg.Register("a", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("a", noop); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := reg.Register("", noop); err == nil {
		t.Fatalf("expected empty name error")
	}
	if err := reg.Register("b", nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
	reg.MustRegister("0", noop)
	if got := strings.Join(reg.Names(), ","); got != "0,a" {
		t.Fatalf("unexpected names %s", got)
	}
}
