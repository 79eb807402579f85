package typeset

import (
	"errors"
	"fmt"
)

var (
	// ErrExternalTool matches every ExternalToolError.
	ErrExternalTool = errors.New("typeset: external tool failed")
	// ErrUnresolvedPlaceholders reports template markers left in a source
	// file handed to the toolchain.
	ErrUnresolvedPlaceholders = errors.New("unresolved placeholders")
)

// ExternalToolError reports a failed typesetting step together with a
// condensed summary of its output and the path of the full log.
type ExternalToolError struct {
	Step     string
	Command  string
	ExitCode int
	Summary  string
	LogPath  string
	Err      error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("typeset: %s failed", e.Step)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Summary != "" {
		msg += ":\n" + e.Summary
	}
	if e.LogPath != "" {
		msg += "\n\nFull log: " + e.LogPath
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

func (e *ExternalToolError) Is(target error) bool { return target == ErrExternalTool }
