package tui

import (
	"strings"

	"github.com/kingrea/texflow/internal/task"
)

// iconFor picks a glyph by task name, falling back to the execution mode.
func iconFor(name string, mode task.Mode) string {
	switch {
	case strings.HasPrefix(name, "clean"):
		return "🧹"
	case strings.HasPrefix(name, "render"):
		return "📝"
	case strings.HasPrefix(name, "copy"):
		return "📁"
	case strings.HasPrefix(name, "compile"):
		return "🐢"
	}
	switch mode {
	case task.ModeInline:
		return "⛓"
	case task.ModeThreaded:
		return "🧵"
	case task.ModeMultiprocess:
		return "⚙"
	default:
		return "•"
	}
}
