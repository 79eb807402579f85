package task

import (
	"context"
	"os"
	"path/filepath"
)

// Renderer turns a context mapping into text. Template errors are the
// renderer's concern.
type Renderer interface {
	Render(data map[string]any) (string, error)
}

// Render executes a pre-loaded template with a context and writes the result
// to Output.
type Render struct {
	Base
	Template Renderer
	Context  map[string]any
	Output   string
}

// NewRender constructs a render task.
func NewRender(tmpl Renderer, data map[string]any, output string, opts ...Option) *Render {
	return &Render{
		Base:     newBase("render-template", ModeThreaded, opts),
		Template: tmpl,
		Context:  data,
		Output:   output,
	}
}

// Run implements Task.Run.
func (r *Render) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Template == nil {
		return fsError("render", r.Output, errNoTemplate)
	}
	text, err := r.Template.Render(r.Context)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.Output), 0o755); err != nil {
		return fsError("mkdir", filepath.Dir(r.Output), err)
	}
	if err := os.WriteFile(r.Output, []byte(text), 0o644); err != nil {
		return fsError("write", r.Output, err)
	}
	return nil
}
