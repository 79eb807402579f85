package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/texflow/assets"
	"github.com/kingrea/texflow/internal/config"
	"github.com/kingrea/texflow/internal/task"
	"github.com/kingrea/texflow/internal/tui"
)

// ExitError carries the exit code the process should terminate with.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is a parsed command line.
type Invocation struct {
	Build      bool
	Init       bool
	Input      string
	ConfigPath string
	Overrides  config.Overrides
}

const usageHeader = `
TexFlow - build LaTeX documents from templates and structured data.

Usage:
  texflow --build --input DATA [--template NAME|DIR] [options]
  texflow --init

Templates:
  A built-in name (%s) or a directory holding main.tex and
  an optional template.hcl.

Options:
`

// Parse processes command-line arguments. It returns the invocation, a
// boolean that is true when the program should exit cleanly (help was
// shown), or an *ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	var (
		inv     Invocation
		workers int
		logFile string
	)
	fs := newFlagSet(output, &inv, &workers, &logFile)

	if len(args) == 0 {
		tui.WriteBanner(output)
		fs.Usage()
		return nil, false, &ExitError{Code: 1}
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 1, Message: err.Error()}
	}
	if fs.NArg() > 0 {
		return nil, false, usageError(fs, fmt.Sprintf("unexpected argument %q", fs.Arg(0)))
	}
	if workers < 0 {
		return nil, false, usageError(fs, "--workers must not be negative")
	}
	inv.Overrides.Workers = workers
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "log-file" {
			inv.Overrides.LogFile = &logFile
		}
	})

	switch {
	case inv.Init:
		return &inv, false, nil
	case inv.Build && strings.TrimSpace(inv.Input) == "":
		return nil, false, usageError(fs, "--build requires --input")
	case !inv.Build:
		return nil, false, usageError(fs, "nothing to do: pass --build or --init")
	}
	return &inv, false, nil
}

// Usage writes the help text shown by --help.
func Usage(w io.Writer) {
	var (
		inv     Invocation
		workers int
		logFile string
	)
	newFlagSet(w, &inv, &workers, &logFile).Usage()
}

func newFlagSet(output io.Writer, inv *Invocation, workers *int, logFile *string) *flag.FlagSet {
	fs := flag.NewFlagSet("texflow", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, usageHeader, strings.Join(assets.Builtins(), ", "))
		fs.PrintDefaults()
	}
	fs.BoolVar(&inv.Build, "build", false, "Build the document.")
	fs.BoolVar(&inv.Build, "b", false, "Build the document (shorthand).")
	fs.StringVar(&inv.Input, "input", "", "Path to the JSON or YAML data file.")
	fs.StringVar(&inv.Input, "i", "", "Path to the JSON or YAML data file (shorthand).")
	fs.StringVar(&inv.Overrides.Template, "template", "", "Template name or directory (default journal).")
	fs.StringVar(&inv.Overrides.Template, "t", "", "Template name or directory (shorthand).")
	fs.StringVar(&inv.Overrides.BuildDir, "build-dir", "", "Directory the document is built in (default build).")
	fs.IntVar(workers, "workers", 0, "Maximum concurrent threaded tasks (default GOMAXPROCS).")
	fs.StringVar(&inv.Overrides.LogLevel, "log-level", "", "Logging level: debug, info, warn or error.")
	fs.StringVar(&inv.Overrides.LogFormat, "log-format", "", "Log output format: text or json.")
	fs.StringVar(logFile, "log-file", "", "Log file path relative to the build dir; empty logs to stderr.")
	fs.StringVar(&inv.ConfigPath, "config", "", "Path to the configuration file (default "+config.FileName+").")
	fs.StringVar(&inv.Overrides.EventsURL, "events-url", "", "socket.io endpoint that receives task events.")
	fs.StringVar(&inv.Overrides.CompileMode, "compile-mode", "", "How the compile task runs: "+strings.Join(modeNames(), ", ")+".")
	fs.BoolVar(&inv.Init, "init", false, "Write a default "+config.FileName+" and exit.")
	return fs
}

func usageError(fs *flag.FlagSet, msg string) error {
	fmt.Fprintln(fs.Output(), tui.ErrorStyle.Render("Error: ")+tui.ErrorMsgStyle.Render(msg))
	fs.Usage()
	return &ExitError{Code: 1, Message: msg}
}

func modeNames() []string {
	return []string{task.ModeInline.String(), task.ModeMultiprocess.String()}
}
