// Package render turns template folders into LaTeX sources.
//
// Templates use Go's text/template language with << >> as action
// delimiters. Control-flow actions may also be written as <<% ... %>>; such
// block tags swallow their own line so loops and conditionals do not leave
// blank lines behind. Missing map keys are errors.
package render

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"github.com/kingrea/texflow/assets"
)

// Engine loads templates from one template folder.
type Engine struct {
	source  string
	fsys    fs.FS
	builtin bool
	funcs   template.FuncMap
}

// Option customizes an engine.
type Option func(*Engine)

// WithFuncs adds or overrides template functions.
func WithFuncs(funcs template.FuncMap) Option {
	return func(e *Engine) {
		for name, fn := range funcs {
			e.funcs[name] = fn
		}
	}
}

// NewEngine resolves source as a template directory or, failing that, as a
// built-in template name.
func NewEngine(source string, opts ...Option) (*Engine, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty source", ErrTemplateNotFound)
	}
	if info, err := os.Stat(trimmed); err == nil && info.IsDir() {
		return NewEngineFS(os.DirFS(trimmed), trimmed, false, opts...)
	}
	if assets.IsBuiltin(trimmed) {
		fsys, err := assets.Template(trimmed)
		if err != nil {
			return nil, err
		}
		return NewEngineFS(fsys, trimmed, true, opts...)
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, trimmed)
}

// NewEngineFS builds an engine over an arbitrary template tree. Function
// plugins under funcs/ are loaded before opts are applied.
func NewEngineFS(fsys fs.FS, source string, builtin bool, opts ...Option) (*Engine, error) {
	e := &Engine{source: source, fsys: fsys, builtin: builtin, funcs: Funcs()}
	plugins, err := LoadPlugins(fsys, PluginDir)
	if err != nil {
		return nil, err
	}
	for name, fn := range plugins {
		e.funcs[name] = fn
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Source returns the directory path or built-in name the engine was built from.
func (e *Engine) Source() string { return e.source }

// Builtin reports whether the engine serves an embedded template.
func (e *Engine) Builtin() bool { return e.builtin }

// FS exposes the template tree.
func (e *Engine) FS() fs.FS { return e.fsys }

// Template loads and parses name from the template tree.
func (e *Engine) Template(name string) (*Template, error) {
	content, err := fs.ReadFile(e.fsys, name)
	if err != nil {
		return nil, &TemplateError{Name: name, Err: err}
	}
	return e.Parse(name, string(content))
}

// Parse compiles template text under the given name.
func (e *Engine) Parse(name, text string) (*Template, error) {
	tmpl, err := template.New(name).
		Delims(leftDelim, rightDelim).
		Option("missingkey=error").
		Funcs(e.funcs).
		Parse(preprocess(text))
	if err != nil {
		return nil, &TemplateError{Name: name, Err: err}
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// Template is a parsed template. It is safe for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

// Name returns the template's name.
func (t *Template) Name() string { return t.name }

// Render executes the template against data.
func (t *Template) Render(data map[string]any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, data); err != nil {
		return "", &TemplateError{Name: t.name, Err: err}
	}
	return b.String(), nil
}
