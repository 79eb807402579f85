package task

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/texflow/internal/ctxlog"
)

// DefaultCleanPattern matches the artifacts a previous build left behind.
const DefaultCleanPattern = "main.*"

// Clean removes stale build artifacts matching a glob inside a directory.
// Files that cannot be removed because of a permission error are skipped
// with a warning.
type Clean struct {
	Base
	Dir     string
	Pattern string

	remove func(string) error
}

// NewClean constructs a clean task for dir using DefaultCleanPattern.
func NewClean(dir string, opts ...Option) *Clean {
	return &Clean{
		Base:    newBase("clean-build", ModeThreaded, opts),
		Dir:     dir,
		Pattern: DefaultCleanPattern,
		remove:  os.Remove,
	}
}

// Run implements Task.Run.
func (c *Clean) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("task", c.Name())
	pattern := c.Pattern
	if pattern == "" {
		pattern = DefaultCleanPattern
	}
	matches, err := filepath.Glob(filepath.Join(c.Dir, pattern))
	if err != nil {
		return fsError("glob", filepath.Join(c.Dir, pattern), err)
	}
	remove := c.remove
	if remove == nil {
		remove = os.Remove
	}
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fsError("stat", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := remove(path); err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
				continue
			case errors.Is(err, fs.ErrPermission):
				logger.Warn("Could not remove stale artifact, skipping.", "path", path, "error", err)
				continue
			default:
				return fsError("remove", path, err)
			}
		}
		logger.Debug("Removed stale artifact.", "path", path)
	}
	return nil
}
