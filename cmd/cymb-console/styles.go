package main

import "github.com/charmbracelet/lipgloss"

// Semantic colors, following the same nextest/vitest-inspired palette
// cymb's sibling tooling uses for status badges.
var (
	colorIdle    = lipgloss.Color("#10b981") // green-500
	colorBusy    = lipgloss.Color("#06b6d4") // cyan-500
	colorWaiting = lipgloss.Color("#f59e0b") // amber-500
	colorFail    = lipgloss.Color("#ef4444") // red-500
	colorDim     = lipgloss.Color("#6b7280") // gray-500
	colorMuted   = lipgloss.Color("#9ca3af") // gray-400
	colorBorder  = lipgloss.Color("#374151") // gray-700
	colorAccent  = lipgloss.Color("#3b82f6") // blue-500
)

// Styles holds all lipgloss styles for the pool-monitor TUI.
type Styles struct {
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Muted     lipgloss.Style
	Bold      lipgloss.Style
	Selected  lipgloss.Style
	DBKey     lipgloss.Style
	Idle      lipgloss.Style
	Busy      lipgloss.Style
	Waiting   lipgloss.Style
	Fail      lipgloss.Style
	EventName lipgloss.Style

	TableBorder lipgloss.Style
}

// DefaultStyles returns the default console styles.
func DefaultStyles() *Styles {
	return &Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Dim:      lipgloss.NewStyle().Foreground(colorDim),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Bold:     lipgloss.NewStyle().Bold(true),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		DBKey:    lipgloss.NewStyle().Foreground(lipgloss.Color("#f8fafc")), // slate-50
		Idle:     lipgloss.NewStyle().Foreground(colorIdle),
		Busy:     lipgloss.NewStyle().Foreground(colorBusy).Bold(true),
		Waiting:  lipgloss.NewStyle().Foreground(colorWaiting).Bold(true),
		Fail:     lipgloss.NewStyle().Foreground(colorFail).Bold(true),

		EventName: lipgloss.NewStyle().Foreground(colorAccent),

		TableBorder: lipgloss.NewStyle().Foreground(colorBorder),
	}
}
