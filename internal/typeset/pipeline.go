// Package typeset runs the external LaTeX toolchain over a build directory
// and turns failures into short, readable diagnostics.
package typeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kingrea/texflow/internal/ctxlog"
	"github.com/kingrea/texflow/internal/manifest"
)

// waitDelay caps how long a cancelled step may hold its output pipes open.
const waitDelay = 2 * time.Second

var unresolvedRe = regexp.MustCompile(`<<.*?>>`)

// Pipeline runs Steps in order inside Dir. It is plain data so it can be
// shipped to a worker process as JSON.
type Pipeline struct {
	Dir    string          `json:"dir"`
	Steps  []manifest.Step `json:"steps"`
	Env    []string        `json:"env,omitempty"`
	LogDir string          `json:"log_dir,omitempty"`

	// Timeout bounds the whole pipeline when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Run executes every step, stopping at the first failure.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("typeset: no steps configured")
	}
	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return fmt.Errorf("typeset: resolve %s: %w", p.Dir, err)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	logger := ctxlog.FromContext(ctx)
	env := append(os.Environ(), p.Env...)
	env = append(env, "TEXINPUTS="+dir+string(os.PathListSeparator))
	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkPlaceholders(dir, step); err != nil {
			return err
		}
		logger.Info("running step",
			slog.String("step", step.Name),
			slog.String("command", strings.Join(append([]string{step.Command}, step.Args...), " ")),
			slog.String("dir", dir),
		)
		cmd := exec.CommandContext(ctx, step.Command, step.Args...)
		cmd.Dir = dir
		cmd.Env = env
		cmd.WaitDelay = waitDelay
		out, runErr := cmd.CombinedOutput()
		if runErr == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return p.failure(step, out, runErr)
	}
	return nil
}

func (p *Pipeline) failure(step manifest.Step, out []byte, runErr error) error {
	toolErr := &ExternalToolError{
		Step:     step.Name,
		Command:  step.Command,
		ExitCode: -1,
		Summary:  Summarize(string(out), MaxExamples),
		Err:      runErr,
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	} else if len(bytes.TrimSpace(out)) == 0 {
		toolErr.Summary = runErr.Error()
	}
	logPath, err := writeLog(p.LogDir, out)
	if err == nil {
		toolErr.LogPath = logPath
	}
	return toolErr
}

// checkPlaceholders refuses to hand a .tex file that still contains
// template markers to the toolchain.
func checkPlaceholders(dir string, step manifest.Step) error {
	for _, arg := range step.Args {
		if !strings.HasSuffix(arg, ".tex") {
			continue
		}
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, arg)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		found := unresolvedRe.FindAllString(string(content), -1)
		if len(found) == 0 {
			return nil
		}
		return &ExternalToolError{
			Step:    step.Name,
			Command: step.Command,
			Summary: "Unresolved placeholders in " + arg + ":\n • " + strings.Join(limit(found, MaxExamples), ", "),
			Err:     ErrUnresolvedPlaceholders,
		}
	}
	return nil
}

func writeLog(dir string, out []byte) (string, error) {
	f, err := os.CreateTemp(dir, "texflow-*.log")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(out); err != nil {
		return "", err
	}
	return f.Name(), nil
}
