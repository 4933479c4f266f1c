// Package tui provides the interactive terminal client.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/duochat/internal/render"
)

var (
	ColorStatusBg = lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#1F2937"}
	ColorStatusFg = lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}
	ColorWarnBg   = lipgloss.AdaptiveColor{Light: "#FEF3C7", Dark: "#78350F"}
	ColorWarnFg   = lipgloss.AdaptiveColor{Light: "#92400E", Dark: "#FDE68A"}
	ColorBorder   = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#374151"}
)

var (
	StatusBarStyle = lipgloss.NewStyle().
			Background(ColorStatusBg).
			Foreground(ColorStatusFg)

	NoticeStyle = lipgloss.NewStyle().
			Background(ColorWarnBg).
			Foreground(ColorWarnFg).
			Bold(true)

	InputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false).
				BorderForeground(ColorBorder)

	IndicatorColor = render.ColorPrimary
)
