package ui

import "github.com/charmbracelet/lipgloss"

// Palette. Adaptive colors keep the dashboard legible on light terminals.
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	ColorDanger    = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	ColorWarning   = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}

	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#374151"}
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorPrimary).
			Padding(0, 1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	MutedValue = lipgloss.NewStyle().Foreground(colorMuted)
	ErrorStyle = lipgloss.NewStyle().Foreground(ColorDanger)
	HelpStyle  = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)
)
