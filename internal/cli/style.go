package cli

import "github.com/charmbracelet/lipgloss"

// Color palette, terminal-friendly.
var (
	ColorPrimary = lipgloss.Color("63")  // Purple
	ColorSuccess = lipgloss.Color("42")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorBorder  = lipgloss.Color("238") // Dark gray
	ColorMuted   = lipgloss.Color("245") // Light gray
)

// Shared styles for text output.
var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleBorder = lipgloss.NewStyle().
			Foreground(ColorBorder)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)
)
