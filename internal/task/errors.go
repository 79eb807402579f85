package task

import (
	"errors"
	"fmt"
)

// ErrUnsupportedSource is returned when a Copy task is given a source that is
// neither a physical path nor a virtual file tree.
var ErrUnsupportedSource = errors.New("task: unsupported copy source")

// FilesystemError reports a failed filesystem operation inside a task.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("task: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

func fsError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FilesystemError{Op: op, Path: path, Err: err}
}

var errNoTemplate = errors.New("no template configured")

var (
	errSymlinkLoop = errors.New("symbolic link loop")
	errNotRegular  = errors.New("not a regular file")
)
