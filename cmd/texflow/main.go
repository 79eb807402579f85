// cmd/texflow/main.go
//
// Entry point for the texflow CLI. The same binary doubles as the worker
// for multiprocess tasks: when started with TEXFLOW_WORKER=1 it serves a
// single request on stdin/stdout and exits.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kingrea/texflow/internal/build"
	"github.com/kingrea/texflow/internal/cli"
	"github.com/kingrea/texflow/internal/config"
	"github.com/kingrea/texflow/internal/ctxlog"
	"github.com/kingrea/texflow/internal/events"
	"github.com/kingrea/texflow/internal/logbook"
	"github.com/kingrea/texflow/internal/logging"
	"github.com/kingrea/texflow/internal/procpool"
	"github.com/kingrea/texflow/internal/runner"
	"github.com/kingrea/texflow/internal/task"
	"github.com/kingrea/texflow/internal/tui"
	"github.com/kingrea/texflow/internal/typeset"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if procpool.IsWorker() {
		os.Exit(serveWorker(ctx))
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
		os.Exit(1)
	}
	if err := run(ctx, cwd, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// serveWorker answers one multiprocess request. Worker logs go to stderr,
// which the parent only surfaces when the worker fails.
func serveWorker(ctx context.Context) int {
	logger := logging.NewLogger("warn", "text", os.Stderr)
	ctx = ctxlog.WithLogger(ctx, logger)
	if err := typeset.RegisterHandlers(task.DefaultRegistry); err != nil {
		logger.Error("Worker setup failed", "error", err)
		return 2
	}
	if err := procpool.Serve(ctx, task.DefaultRegistry, os.Stdin, os.Stdout); err != nil {
		logger.Error("Worker protocol failure", "error", err)
		return 2
	}
	return 0
}

// run is main without process exits so it can be exercised from tests.
func run(ctx context.Context, dir string, args []string, stdout, stderr io.Writer) error {
	inv, shouldExit, err := cli.Parse(args, stdout)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}
	if inv.Init {
		return initConfig(dir, inv.ConfigPath, stdout)
	}

	cfg, err := config.Load(dir, inv.ConfigPath)
	if err != nil {
		return fail(stderr, err)
	}
	if err := cfg.Apply(inv.Overrides); err != nil {
		return fail(stderr, err)
	}
	project := cfg.Project

	logger, err := logging.New(cfg.LogFile(), project.Log.Level, project.Log.Format, stderr)
	if err != nil {
		return fail(stderr, err)
	}
	defer logger.Close()
	ctx = ctxlog.WithLogger(ctx, logger.Logger)
	logger.Info("texflow starting",
		slog.String("config", cfg.Path),
		slog.String("template", project.Template),
		slog.String("input", inv.Input),
		slog.Int("workers", project.Workers),
	)

	book, err := logbook.New(filepath.Join(cfg.BuildDir(), logbook.FileName))
	if err != nil {
		logger.Warn("Build history disabled", "error", err)
	}

	display := tui.NewObserver(stdout)
	observers := runner.Observers{display, book}
	if project.Events.URL != "" {
		sink, closeSink := events.Connect(ctx, events.Options{URL: project.Events.URL, Namespace: project.Events.Namespace})
		defer closeSink()
		observers = append(observers, sink)
	}

	input := inv.Input
	if !filepath.IsAbs(input) {
		input = filepath.Join(dir, input)
	}
	template := project.Template
	if candidate := filepath.Join(dir, template); !filepath.IsAbs(template) && isDir(candidate) {
		template = candidate
	}

	book.Info("build started: template=%s input=%s", template, input)
	display.Start()
	err = build.Build(ctx, build.Options{
		Input:          input,
		Template:       template,
		BuildDir:       cfg.BuildDir(),
		Workers:        project.Workers,
		TaskTimeout:    project.TaskTimeout,
		CompileMode:    project.Compile.Mode,
		CompileTimeout: project.Compile.Timeout,
		Observer:       observers,
	})
	display.Stop(err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			book.Warn("build interrupted: %v", err)
		} else {
			book.Error("build failed: %v", err)
		}
		report(stderr, err, logger.Path(), book)
		fmt.Fprintln(stderr)
		cli.Usage(stderr)
		return &cli.ExitError{Code: 1, Message: err.Error()}
	}
	book.Info("build finished")
	return nil
}

func initConfig(dir, explicit string, stdout io.Writer) error {
	path := explicit
	if strings.TrimSpace(path) == "" {
		path = config.FileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if err := config.WriteDefault(path); err != nil {
		return &cli.ExitError{Code: 1, Message: err.Error()}
	}
	fmt.Fprintln(stdout, tui.MsgStyle.Render("Wrote ")+tui.CmdStyle.Render(path))
	return nil
}

func fail(w io.Writer, err error) error {
	fmt.Fprintln(w, tui.ErrorStyle.Render("Error: ")+tui.ErrorMsgStyle.Render(err.Error()))
	return &cli.ExitError{Code: 1, Message: err.Error()}
}

const historyLines = 5

// report prints a failed build. Typesetting failures show the diagnostic
// summary instead of the raw tool output.
func report(w io.Writer, err error, logPath string, book *logbook.Logbook) {
	var toolErr *typeset.ExternalToolError
	var taskErr *runner.TaskError
	switch {
	case errors.As(err, &toolErr):
		fmt.Fprintln(w, tui.ErrorStyle.Render(fmt.Sprintf("✖ %s failed (%s)", toolErr.Step, toolErr.Command)))
		fmt.Fprintln(w, tui.ErrorMsgStyle.Render(toolErr.Summary))
		if toolErr.LogPath != "" {
			fmt.Fprintln(w, tui.SubMsgStyle.Render("Full output: "+toolErr.LogPath))
		}
	case errors.As(err, &taskErr):
		fmt.Fprintln(w, tui.ErrorStyle.Render("✖ "+taskErr.Task+" failed"))
		fmt.Fprintln(w, tui.ErrorMsgStyle.Render(taskErr.Err.Error()))
	default:
		fmt.Fprintln(w, tui.ErrorStyle.Render("Error: ")+tui.ErrorMsgStyle.Render(err.Error()))
	}
	if logPath != "" {
		fmt.Fprintln(w, tui.SubMsgStyle.Render("Build log: "+logPath))
	}
	if lines, total := book.Tail(historyLines); total > 0 {
		fmt.Fprintln(w, tui.HeaderStyle.Render("Recent history")+" "+tui.SubMsgStyle.Render(book.Path()))
		for _, line := range lines {
			fmt.Fprintln(w, tui.SubMsgStyle.Render("  "+line))
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
