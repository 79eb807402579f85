// Package assets embeds the built-in templates together with the shared
// image and plot trees copied into every build.
package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

//go:embed all:templates all:images all:plots
var FS embed.FS

// ErrUnknownTemplate reports a name that does not match a built-in template.
var ErrUnknownTemplate = errors.New("assets: unknown built-in template")

// Builtins lists the built-in template names.
func Builtins() []string {
	entries, err := fs.ReadDir(FS, "templates")
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// IsBuiltin reports whether name is a built-in template.
func IsBuiltin(name string) bool {
	if name == "" || name != path.Base(name) {
		return false
	}
	info, err := fs.Stat(FS, path.Join("templates", name))
	return err == nil && info.IsDir()
}

// Template returns the file tree of a built-in template.
func Template(name string) (fs.FS, error) {
	if !IsBuiltin(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return fs.Sub(FS, path.Join("templates", name))
}

// Tree returns a top-level asset tree such as "images" or "plots".
func Tree(name string) (fs.FS, error) {
	return fs.Sub(FS, name)
}
