// Package atoms provides low-level TUI building blocks.
package atoms

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Indicator is the typing indicator shown while a turn has no text yet.
// It only ticks while running.
type Indicator struct {
	model   spinner.Model
	running bool
}

// NewIndicator creates a stopped indicator with the dots pattern.
func NewIndicator(color lipgloss.TerminalColor) Indicator {
	return Indicator{
		model: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(color)),
		),
	}
}

// Start begins ticking. It returns nil when already running.
func (i *Indicator) Start() tea.Cmd {
	if i.running {
		return nil
	}
	i.running = true
	return i.model.Tick
}

// Stop ends the tick loop after the next tick.
func (i *Indicator) Stop() {
	i.running = false
}

// Running reports whether the indicator is ticking.
func (i Indicator) Running() bool {
	return i.running
}

// Update advances the frame on spinner ticks. Ticks received while stopped
// are dropped, which ends the loop.
func (i Indicator) Update(msg tea.Msg) (Indicator, tea.Cmd) {
	tick, ok := msg.(spinner.TickMsg)
	if !ok || !i.running {
		return i, nil
	}
	var cmd tea.Cmd
	i.model, cmd = i.model.Update(tick)
	return i, cmd
}

// View renders the current frame.
func (i Indicator) View() string {
	return i.model.View()
}
