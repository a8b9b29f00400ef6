package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	addressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Station list styles.
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	playingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")) // green
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))            // yellow
	urlStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// Volume bar.
	volumeFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	volumeEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("1")).
			Foreground(lipgloss.Color("1"))

	formBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("4")).Padding(0, 1)
)
