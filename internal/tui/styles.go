package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("#8BC34A")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#e53935")
	muted   = lipgloss.Color("#6b7280")
)

type Styles struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Cursor   lipgloss.Style
	New      lipgloss.Style
	Changed  lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Selected lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		Header:   lipgloss.NewStyle().Bold(true).Underline(true),
		Cursor:   lipgloss.NewStyle().Foreground(accent).Bold(true),
		New:      lipgloss.NewStyle().Foreground(accent),
		Changed:  lipgloss.NewStyle().Foreground(warning),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		Error:    lipgloss.NewStyle().Foreground(danger),
		Selected: lipgloss.NewStyle().Reverse(true),
	}
}
