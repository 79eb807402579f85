// Package build turns a data file and a template into a typeset document.
// It wires the template engine, the manifest and the typesetting pipeline
// into a task graph and hands that graph to the runner.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/texflow/assets"
	"github.com/kingrea/texflow/internal/ctxlog"
	"github.com/kingrea/texflow/internal/data"
	"github.com/kingrea/texflow/internal/manifest"
	"github.com/kingrea/texflow/internal/render"
	"github.com/kingrea/texflow/internal/runner"
	"github.com/kingrea/texflow/internal/task"
	"github.com/kingrea/texflow/internal/typeset"
)

// ErrMissingAsset reports an asset tree found neither in the template nor
// among the embedded assets.
var ErrMissingAsset = errors.New("build: asset tree not found")

// Options describe one build.
type Options struct {
	// Input is the JSON or YAML data file. Data, when set, is used instead.
	Input string
	Data  map[string]any

	// Template is a template directory or a built-in template name.
	Template string
	BuildDir string

	Workers        int
	TaskTimeout    time.Duration
	CompileMode    task.Mode
	CompileTimeout time.Duration

	Observer runner.Observer
	Pool     runner.ProcessPool
	Registry *task.Registry
}

// Plan is the prepared task graph of a build.
type Plan struct {
	BuildDir string
	Manifest *manifest.Manifest
	Engine   *render.Engine
	Tasks    []task.Task
	Compile  *task.Process
}

// Build prepares the plan and runs it.
func Build(ctx context.Context, opts Options) error {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()
	plan, err := Prepare(ctx, opts)
	if err != nil {
		return err
	}
	var ropts []runner.Option
	if opts.Workers > 0 {
		ropts = append(ropts, runner.WithWorkers(opts.Workers))
	}
	if opts.Observer != nil {
		ropts = append(ropts, runner.WithObserver(opts.Observer))
	}
	if opts.TaskTimeout > 0 {
		ropts = append(ropts, runner.WithTaskTimeout(opts.TaskTimeout))
	}
	if opts.Pool != nil {
		ropts = append(ropts, runner.WithProcessPool(opts.Pool))
	}
	logger.Info("Starting build",
		slog.String("template", plan.Engine.Source()),
		slog.String("build_dir", plan.BuildDir),
		slog.Int("tasks", len(plan.Tasks)),
		slog.String("compile_mode", plan.Compile.Mode().String()),
	)
	if err := runner.New(ropts...).Run(ctx, plan.Tasks); err != nil {
		logger.Error("Build failed", "error", err, "elapsed", time.Since(started))
		return err
	}
	logger.Info("Build finished", "document", plan.Document(), "elapsed", time.Since(started))
	return nil
}

// Document is the path the typeset document is expected at.
func (p *Plan) Document() string {
	return filepath.Join(p.BuildDir, replaceExt(p.Manifest.Output, ".pdf"))
}

// Prepare loads every input and constructs the task graph without running it.
func Prepare(ctx context.Context, opts Options) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	if !opts.CompileMode.Valid() {
		return nil, fmt.Errorf("build: invalid compile mode %s", opts.CompileMode)
	}
	buildDir, err := filepath.Abs(opts.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("build: resolve build dir: %w", err)
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, fmt.Errorf("build: create build dir: %w", err)
	}

	values := opts.Data
	if values == nil {
		if opts.Input == "" {
			return nil, fmt.Errorf("build: no input data")
		}
		values, err = data.Load(opts.Input)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded data", "path", opts.Input, "keys", len(values))
	}

	engine, err := render.NewEngine(opts.Template)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(engine.FS(), manifest.Vars{BuildDir: buildDir, Template: engine.Source()})
	if err != nil {
		return nil, err
	}
	entry, err := engine.Template(m.Entry)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = task.DefaultRegistry
	}
	if _, err := reg.Lookup(typeset.HandlerName); err != nil {
		if err := typeset.RegisterHandlers(reg); err != nil {
			return nil, err
		}
	}

	clean := task.NewClean(buildDir, task.WithMode(task.ModeInline))
	tasks := []task.Task{clean}

	renderTask := task.NewRender(entry, values, filepath.Join(buildDir, filepath.FromSlash(m.Output)), task.DependsOn(clean))
	tasks = append(tasks, renderTask)

	// Siblings in the copy wave must not write the same files, so the
	// template copy leaves out every path another task produces.
	claimed := []string{m.Output}
	for _, a := range m.Assets {
		claimed = append(claimed, a.Name)
		src, err := resolveAsset(engine, a)
		if err != nil {
			return nil, err
		}
		logger.Debug("Resolved asset", "asset", a.Name, "source", src.String())
		tasks = append(tasks, task.NewCopy(src, filepath.Join(buildDir, filepath.FromSlash(a.Name)),
			task.WithName("copy-"+a.Name), task.DependsOn(clean)))
	}

	var tplSource task.Source = task.PathSource(engine.Source())
	if engine.Builtin() {
		tplSource = task.FSSource{FS: engine.FS(), Root: "."}
	}
	copyTemplate := task.NewCopy(tplSource, buildDir, task.WithName("copy-template"), task.DependsOn(clean)).
		Ignoring(m.IgnoreSuffix).
		Skipping(claimed...)
	tasks = append(tasks, copyTemplate)

	pipeline := &typeset.Pipeline{
		Dir:     buildDir,
		Steps:   m.Steps,
		LogDir:  os.TempDir(),
		Timeout: opts.CompileTimeout,
	}
	compile := typeset.NewTask(pipeline, task.WithMode(opts.CompileMode), task.DependsOn(tasks...)).UseRegistry(reg)
	tasks = append(tasks, compile)

	return &Plan{
		BuildDir: buildDir,
		Manifest: m,
		Engine:   engine,
		Tasks:    tasks,
		Compile:  compile,
	}, nil
}

// resolveAsset looks for an asset tree inside the template first and falls
// back to the embedded asset trees.
func resolveAsset(engine *render.Engine, a manifest.Asset) (task.Source, error) {
	src := a.Source
	if src == "" {
		src = a.Name
	}
	if engine.Builtin() {
		if isDir(engine.FS(), src) {
			return task.FSSource{FS: engine.FS(), Root: src}, nil
		}
	} else {
		p := filepath.Join(engine.Source(), filepath.FromSlash(src))
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return task.PathSource(p), nil
		}
	}
	if isDir(assets.FS, src) {
		return task.FSSource{FS: assets.FS, Root: src}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingAsset, src)
}

func isDir(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}

func replaceExt(name, ext string) string {
	return name[:len(name)-len(filepath.Ext(name))] + ext
}
