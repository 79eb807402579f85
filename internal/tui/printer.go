package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/texflow/internal/task"
)

// Printer reports task progress as plain lines. It suits pipes, CI logs and
// any writer that is not a terminal.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a line-oriented observer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) WaveStarted(index int, ready []task.Task) {
	names := make([]string, len(ready))
	for i, t := range ready {
		names[i] = t.Name()
	}
	p.println(SubMsgStyle.Render(fmt.Sprintf("wave %d: %s", index, strings.Join(names, ", "))))
}

func (p *Printer) TaskStarted(t task.Task) {
	p.println(fmt.Sprintf("%s %s %s", iconFor(t.Name(), t.Mode()), CmdStyle.Render(t.Name()), SubMsgStyle.Render("("+t.Mode().String()+")")))
}

func (p *Printer) TaskFinished(t task.Task, elapsed time.Duration) {
	p.println(fmt.Sprintf("%s %s %s", MsgStyle.Render("✔"), t.Name(), SubMsgStyle.Render(seconds(elapsed))))
}

func (p *Printer) TaskFailed(t task.Task, elapsed time.Duration, err error) {
	p.println(fmt.Sprintf("%s %s %s", ErrorStyle.Render("✖"), t.Name(), SubMsgStyle.Render(seconds(elapsed))))
	for _, line := range strings.Split(strings.TrimRight(err.Error(), "\n"), "\n") {
		p.println(ErrorMsgStyle.Render("  " + line))
	}
}

// Start is a no-op; it exists so Printer and Progress share a lifecycle.
func (p *Printer) Start() {}

// Stop prints the final verdict.
func (p *Printer) Stop(err error) {
	if err != nil {
		p.println(ErrorStyle.Render("✖ Build failed"))
		return
	}
	p.println(MsgStyle.Render("✨ Document build finished ✨"))
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
