// Package manifest decodes template.hcl, the optional file in a template
// folder that names its entry template, the asset trees copied next to it and
// the typesetting steps run over the rendered output.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// FileName is the manifest's name inside a template folder.
const FileName = "template.hcl"

// Manifest describes how a template folder is built.
type Manifest struct {
	Entry        string
	Output       string
	IgnoreSuffix string
	Assets       []Asset
	Steps        []Step
}

// Asset is a tree copied into the build directory under Name.
type Asset struct {
	Name   string
	Source string
}

// Step is one external command of the typesetting pipeline.
type Step struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Vars are exposed to manifest expressions as build_dir and template.
type Vars struct {
	BuildDir string
	Template string
}

type hclManifest struct {
	Entry        *string    `hcl:"entry,optional"`
	Output       *string    `hcl:"output,optional"`
	IgnoreSuffix *string    `hcl:"ignore_suffix,optional"`
	Assets       []hclAsset `hcl:"asset,block"`
	Steps        []hclStep  `hcl:"step,block"`
}

type hclAsset struct {
	Name   string  `hcl:"name,label"`
	Source *string `hcl:"source,optional"`
}

type hclStep struct {
	Name    string   `hcl:"name,label"`
	Command string   `hcl:"command"`
	Args    []string `hcl:"args,optional"`
}

// Default returns the manifest used when a template folder has none:
// main.tex rendered to main.tex, the shared images and plots trees, and the
// xelatex, biber, xelatex sequence.
func Default() *Manifest {
	return &Manifest{
		Entry:        "main.tex",
		Output:       "main.tex",
		IgnoreSuffix: ".tex",
		Assets: []Asset{
			{Name: "images", Source: "images"},
			{Name: "plots", Source: "plots"},
		},
		Steps: DefaultSteps(),
	}
}

// DefaultSteps is the three-pass typesetting sequence.
func DefaultSteps() []Step {
	return []Step{
		{Name: "xelatex", Command: "xelatex", Args: []string{"-interaction=nonstopmode", "main.tex"}},
		{Name: "biber", Command: "biber", Args: []string{"main"}},
		{Name: "xelatex-final", Command: "xelatex", Args: []string{"-interaction=nonstopmode", "main.tex"}},
	}
}

// Load reads FileName from fsys. A missing manifest yields Default().
func Load(fsys fs.FS, vars Vars) (*Manifest, error) {
	src, err := fs.ReadFile(fsys, FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("manifest: read %s: %w", FileName, err)
	}
	return Parse(src, FileName, vars)
}

// Parse decodes manifest source. Attributes that are absent keep their
// default; asset or step blocks replace the defaults wholesale.
func Parse(src []byte, filename string, vars Vars) (*Manifest, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("manifest: parse %s: %w", filename, diags)
	}
	var raw hclManifest
	if diags := gohcl.DecodeBody(file.Body, evalContext(vars), &raw); diags.HasErrors() {
		return nil, fmt.Errorf("manifest: decode %s: %w", filename, diags)
	}
	m := Default()
	if raw.Entry != nil {
		m.Entry = strings.TrimSpace(*raw.Entry)
	}
	if raw.Output != nil {
		m.Output = strings.TrimSpace(*raw.Output)
	}
	if raw.IgnoreSuffix != nil {
		m.IgnoreSuffix = strings.TrimSpace(*raw.IgnoreSuffix)
	}
	if len(raw.Assets) > 0 {
		m.Assets = m.Assets[:0]
		for _, a := range raw.Assets {
			asset := Asset{Name: a.Name, Source: a.Name}
			if a.Source != nil {
				asset.Source = strings.TrimSpace(*a.Source)
			}
			m.Assets = append(m.Assets, asset)
		}
	}
	if len(raw.Steps) > 0 {
		m.Steps = m.Steps[:0]
		for _, s := range raw.Steps {
			m.Steps = append(m.Steps, Step{Name: s.Name, Command: strings.TrimSpace(s.Command), Args: s.Args})
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", filename, err)
	}
	return m, nil
}

func evalContext(vars Vars) *hcl.EvalContext {
	buildDir := vars.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"build_dir": cty.StringVal(buildDir),
			"template":  cty.StringVal(vars.Template),
		},
	}
}

// Validate checks the manifest for paths that would escape the template or
// build directory and for incomplete steps.
func (m *Manifest) Validate() error {
	if err := relativePath("entry", m.Entry); err != nil {
		return err
	}
	if err := relativePath("output", m.Output); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, a := range m.Assets {
		if err := relativePath("asset "+a.Name, a.Name); err != nil {
			return err
		}
		if err := relativePath("asset "+a.Name+" source", a.Source); err != nil {
			return err
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("asset %q declared twice", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for _, s := range m.Steps {
		if s.Command == "" {
			return fmt.Errorf("step %q has no command", s.Name)
		}
	}
	return nil
}

func relativePath(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	clean := path.Clean(strings.ReplaceAll(value, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%s %q must stay inside its directory", field, value)
	}
	return nil
}
