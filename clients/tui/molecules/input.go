// Package molecules provides mid-level TUI components.
package molecules

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SubmitMsg carries a submitted prompt or slash command.
type SubmitMsg struct {
	Text string
}

// EmptySubmitMsg is sent when Enter is pressed on a blank input.
type EmptySubmitMsg struct{}

// PromptInput is a single-line textarea with Enter-to-submit and Up/Down
// recall of earlier prompts.
type PromptInput struct {
	textarea textarea.Model
	recall   []string
	pos      int // index into recall, -1 when editing a fresh line
	draft    string
}

// NewPromptInput creates a focused input.
func NewPromptInput() PromptInput {
	ta := textarea.New()
	ta.Placeholder = "Ask something..."
	ta.Prompt = "› "
	ta.ShowLineNumbers = false
	ta.SetHeight(1)
	ta.CharLimit = 0
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	return PromptInput{textarea: ta, pos: -1}
}

// SetWidth sets the input width.
func (p *PromptInput) SetWidth(w int) {
	p.textarea.SetWidth(w)
}

// Value returns the current text.
func (p PromptInput) Value() string {
	return p.textarea.Value()
}

// SetValue replaces the current text.
func (p *PromptInput) SetValue(s string) {
	p.textarea.SetValue(s)
}

// Update handles key events. Blank input is not cleared on Enter so the
// caller can show a notice without losing anything.
func (p PromptInput) Update(msg tea.Msg) (PromptInput, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(p.textarea.Value())
			if text == "" {
				return p, func() tea.Msg { return EmptySubmitMsg{} }
			}
			p.recall = append(p.recall, text)
			p.pos = -1
			p.draft = ""
			p.textarea.Reset()
			return p, func() tea.Msg { return SubmitMsg{Text: text} }

		case tea.KeyUp:
			if len(p.recall) == 0 {
				return p, nil
			}
			switch {
			case p.pos == -1:
				p.draft = p.textarea.Value()
				p.pos = len(p.recall) - 1
			case p.pos > 0:
				p.pos--
			}
			p.textarea.SetValue(p.recall[p.pos])
			return p, nil

		case tea.KeyDown:
			if p.pos == -1 {
				return p, nil
			}
			if p.pos < len(p.recall)-1 {
				p.pos++
				p.textarea.SetValue(p.recall[p.pos])
			} else {
				p.pos = -1
				p.textarea.SetValue(p.draft)
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.textarea, cmd = p.textarea.Update(msg)
	return p, cmd
}

// View renders the input.
func (p PromptInput) View() string {
	return p.textarea.View()
}
