// internal/tui/progress.go
//
// Progress is a bubbletea program that renders one row per task with a
// spinner while it runs. Runner callbacks arrive on worker goroutines and
// are forwarded to the program as messages, so the model itself is only
// touched by the bubbletea event loop.

package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/texflow/internal/task"
)

type rowState int

const (
	rowRunning rowState = iota
	rowDone
	rowFailed
)

type row struct {
	name    string
	mode    task.Mode
	state   rowState
	elapsed time.Duration
	err     error
}

type waveMsg struct {
	index int
	names []string
}

type taskStartedMsg struct {
	name string
	mode task.Mode
}

type taskEndedMsg struct {
	name    string
	elapsed time.Duration
	err     error
}

type buildDoneMsg struct{ err error }

// progressModel is the bubbletea model behind Progress.
type progressModel struct {
	spinner spinner.Model
	rows    []*row
	index   map[string]*row
	wave    int
	done    bool
	err     error
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = CmdStyle
	return progressModel{spinner: s, index: map[string]*row{}}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case waveMsg:
		m.wave = msg.index
		return m, nil
	case taskStartedMsg:
		r := &row{name: msg.name, mode: msg.mode, state: rowRunning}
		m.rows = append(m.rows, r)
		m.index[msg.name] = r
		return m, nil
	case taskEndedMsg:
		if r, ok := m.index[msg.name]; ok {
			r.elapsed = msg.elapsed
			r.err = msg.err
			r.state = rowDone
			if msg.err != nil {
				r.state = rowFailed
			}
		}
		return m, nil
	case buildDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("texflow build"))
	if m.wave > 0 && !m.done {
		b.WriteString(" " + SubMsgStyle.Render(fmt.Sprintf("wave %d", m.wave)))
	}
	b.WriteString("\n")
	for _, r := range m.rows {
		switch r.state {
		case rowRunning:
			fmt.Fprintf(&b, "%s %s %s %s\n", m.spinner.View(), iconFor(r.name, r.mode), CmdStyle.Render(r.name), SubMsgStyle.Render(r.mode.String()))
		case rowDone:
			fmt.Fprintf(&b, "%s %s %s %s\n", MsgStyle.Render("✔"), iconFor(r.name, r.mode), r.name, SubMsgStyle.Render(seconds(r.elapsed)))
		case rowFailed:
			fmt.Fprintf(&b, "%s %s %s %s\n", ErrorStyle.Render("✖"), iconFor(r.name, r.mode), r.name, SubMsgStyle.Render(seconds(r.elapsed)))
		}
	}
	if m.done {
		if m.err != nil {
			b.WriteString(ErrorStyle.Render("✖ Build failed") + "\n")
		} else {
			b.WriteString(MsgStyle.Render("✨ Document build finished ✨") + "\n")
		}
	}
	return b.String()
}

// Progress renders live task progress on a terminal.
type Progress struct {
	program  *tea.Program
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewProgress prepares a progress view writing to w. Keyboard input is not
// read; cancellation is left to the caller's signal handling.
func NewProgress(w io.Writer) *Progress {
	return &Progress{
		program: tea.NewProgram(newProgressModel(), tea.WithOutput(w), tea.WithInput(nil)),
		done:    make(chan struct{}),
	}
}

// Start runs the program in the background.
func (p *Progress) Start() {
	p.started = true
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop renders the final verdict and waits for the program to exit.
func (p *Progress) Stop(err error) {
	p.stopOnce.Do(func() {
		if !p.started {
			return
		}
		p.program.Send(buildDoneMsg{err: err})
		<-p.done
	})
}

func (p *Progress) WaveStarted(index int, ready []task.Task) {
	names := make([]string, len(ready))
	for i, t := range ready {
		names[i] = t.Name()
	}
	p.program.Send(waveMsg{index: index, names: names})
}

func (p *Progress) TaskStarted(t task.Task) {
	p.program.Send(taskStartedMsg{name: t.Name(), mode: t.Mode()})
}

func (p *Progress) TaskFinished(t task.Task, elapsed time.Duration) {
	p.program.Send(taskEndedMsg{name: t.Name(), elapsed: elapsed})
}

func (p *Progress) TaskFailed(t task.Task, elapsed time.Duration, err error) {
	p.program.Send(taskEndedMsg{name: t.Name(), elapsed: elapsed, err: err})
}
