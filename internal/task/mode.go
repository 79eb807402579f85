package task

import (
	"fmt"
	"strings"
)

// Mode selects the concurrency policy the runner applies to a task.
type Mode int

const (
	// ModeInline runs the task on the runner's own goroutine.
	ModeInline Mode = iota
	// ModeThreaded runs the task on the shared goroutine pool.
	ModeThreaded
	// ModeMultiprocess runs the task in an isolated worker process.
	ModeMultiprocess
)

// Modes lists every mode in dispatch order.
var Modes = []Mode{ModeInline, ModeThreaded, ModeMultiprocess}

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeInline:
		return "inline"
	case ModeThreaded:
		return "threaded"
	case ModeMultiprocess:
		return "multiprocess"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m >= ModeInline && m <= ModeMultiprocess
}

// ParseMode accepts the canonical names plus the short aliases used by older
// configuration files (chain, thread, process).
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "inline", "chain":
		return ModeInline, nil
	case "threaded", "thread":
		return ModeThreaded, nil
	case "multiprocess", "process":
		return ModeMultiprocess, nil
	default:
		return ModeInline, fmt.Errorf("task: unknown mode %q", value)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("task: invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
