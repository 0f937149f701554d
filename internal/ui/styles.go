package ui

import "github.com/charmbracelet/lipgloss"

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

	styleTab       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleTabActive = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Underline(true)

	styleFooter = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	stylePaused = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))

	styleWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleCritical = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)
