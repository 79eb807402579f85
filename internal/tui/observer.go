package tui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/kingrea/texflow/internal/runner"
)

// Display is a runner observer with a start/stop lifecycle around a build.
type Display interface {
	runner.Observer
	Start()
	Stop(err error)
}

// NewObserver returns a live Progress view when w is a terminal and a line
// Printer otherwise.
func NewObserver(w io.Writer) Display {
	if IsTerminal(w) {
		return NewProgress(w)
	}
	return NewPrinter(w)
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
