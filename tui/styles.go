// Package tui renders the interactive connection screen for Campus VPN.
// This file contains the lipgloss styles and status palette.
package tui

import "github.com/charmbracelet/lipgloss"

// Status palette, shared with the desktop notification icons: green for
// connected, amber for in-progress, red for failed, blue as accent.
var (
	colorConnected  = lipgloss.Color("#2ec27e")
	colorConnecting = lipgloss.Color("#e5a50a")
	colorError      = lipgloss.Color("#e01b24")
	colorAccent     = lipgloss.Color("#3584e4")
	colorDim        = lipgloss.Color("244")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	connectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorConnected)

	connectingStyle = lipgloss.NewStyle().
			Foreground(colorConnecting)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	promptStyle = lipgloss.NewStyle().
			Bold(true)

	mfaStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 2)
)
