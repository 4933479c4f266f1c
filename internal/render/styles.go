package render

import "github.com/charmbracelet/lipgloss"

// Adaptive colors (light/dark terminal detection).
var (
	ColorPrompt    = lipgloss.AdaptiveColor{Light: "#0369A1", Dark: "#7DD3FC"}
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#0284C7", Dark: hexAccent}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: hexSecond}
	ColorError     = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#FF6B6B"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: hexMuted, Dark: "#9CA3AF"}
)

var (
	PromptStyle = lipgloss.NewStyle().
			Foreground(ColorPrompt).
			Bold(true)

	PrimaryLabelStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)

	SecondaryLabelStyle = lipgloss.NewStyle().
				Foreground(ColorSecondary).
				Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Faint(true)
)
