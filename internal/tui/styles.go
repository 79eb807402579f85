// internal/tui/styles.go
//
// Console palette shared by the banner, the line printer and the progress
// view.

package tui

import "github.com/charmbracelet/lipgloss"

var (
	// MsgStyle marks primary status lines.
	MsgStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#93FF96"))
	// CmdStyle marks task names and commands.
	CmdStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AA7DCE"))
	// SubMsgStyle marks secondary detail.
	SubMsgStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#616161"))
	// WarningStyle marks recoverable problems.
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF9800"))
	// ErrorStyle marks failures.
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F44336"))
	// ErrorMsgStyle marks failure detail.
	ErrorMsgStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#F44336"))
	// HeaderStyle marks section headers.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#2196F3"))
)
