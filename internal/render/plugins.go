package render

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path"
	"reflect"
	"sort"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// PluginDir is the template-relative directory scanned for function plugins.
const PluginDir = "funcs"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// LoadPlugins interprets every .go file in dir. Each exported top-level
// function becomes a template function named with a lower-case first
// letter, so func Shout is called as shout. Files load in name order; later
// files override earlier ones. A missing dir yields no functions.
func LoadPlugins(fsys fs.FS, dir string) (template.FuncMap, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("render: read %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	funcs := template.FuncMap{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".go" {
			continue
		}
		file := path.Join(dir, entry.Name())
		fileFuncs, err := loadPluginFile(fsys, file)
		if err != nil {
			return nil, err
		}
		for name, fn := range fileFuncs {
			funcs[name] = fn
		}
	}
	if len(funcs) == 0 {
		return nil, nil
	}
	return funcs, nil
}

func loadPluginFile(fsys fs.FS, file string) (template.FuncMap, error) {
	code, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("render: read plugin %s: %w", file, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("render: plugin %s is empty", file)
	}
	names, err := exportedFuncs(file, code)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("render: plugin %s declares no exported functions", file)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("render: plugin %s: load stdlib: %w", file, err)
	}
	if _, err := i.Eval(string(code)); err != nil {
		return nil, fmt.Errorf("render: interpret %s: %w", file, err)
	}
	funcs := make(template.FuncMap, len(names))
	for _, name := range names {
		value, err := i.Eval(name)
		if err != nil {
			return nil, fmt.Errorf("render: plugin %s: resolve %s: %w", file, name, err)
		}
		if err := checkTemplateFunc(value); err != nil {
			return nil, fmt.Errorf("render: plugin %s: %s %w", file, name, err)
		}
		funcs[templateName(name)] = value.Interface()
	}
	return funcs, nil
}

// exportedFuncs lists exported top-level functions without receivers.
func exportedFuncs(file string, code []byte) ([]string, error) {
	parsed, err := parser.ParseFile(token.NewFileSet(), file, code, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("render: parse plugin %s: %w", file, err)
	}
	var names []string
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || !fn.Name.IsExported() {
			continue
		}
		names = append(names, fn.Name.Name)
	}
	return names, nil
}

func templateName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// checkTemplateFunc mirrors the shape text/template accepts: one result, or
// two with an error last.
func checkTemplateFunc(value reflect.Value) error {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return fmt.Errorf("is not a function")
	}
	t := value.Type()
	switch {
	case t.NumOut() == 1:
		return nil
	case t.NumOut() == 2 && t.Out(1) == errorType:
		return nil
	default:
		return fmt.Errorf("must return one value or a value and an error")
	}
}
