// Package organisms provides high-level TUI components.
package organisms

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/render"
)

// HistoryView is the scrollable conversation history. Frozen turns are
// rendered once and cached; the active turn is re-rendered on every update.
type HistoryView struct {
	viewport viewport.Model
	opts     render.Options
	turns    []conversation.TurnSnapshot
	cache    map[string]string // turn ID -> rendered frozen turn
	follow   bool

	placeholder string
}

// NewHistoryView creates an empty history view.
func NewHistoryView(width, height int, opts render.Options) HistoryView {
	vp := viewport.New(width, height)
	// Scrolling is driven by PageUp/PageDown from the main model so the
	// arrow keys stay with the input.
	vp.KeyMap = viewport.KeyMap{}
	vp.MouseWheelEnabled = true

	opts.Width = contentWidth(width)
	return HistoryView{
		viewport: vp,
		opts:     opts,
		cache:    make(map[string]string),
		follow:   true,
	}
}

func contentWidth(width int) int {
	return max(width-2, 0)
}

// SetSize updates the viewport dimensions.
func (h *HistoryView) SetSize(width, height int) {
	h.viewport.Width = width
	h.viewport.Height = height
	if w := contentWidth(width); w != h.opts.Width {
		h.opts.Width = w
		clear(h.cache)
	}
	h.refresh()
}

// SetOptions replaces the render options, keeping the current width.
func (h *HistoryView) SetOptions(opts render.Options) {
	opts.Width = h.opts.Width
	h.opts = opts
	clear(h.cache)
	h.refresh()
}

// SetTurns replaces the displayed history.
func (h *HistoryView) SetTurns(turns []conversation.TurnSnapshot) {
	h.turns = turns
	h.refresh()
}

// SetPlaceholder sets the text shown while the history is empty.
func (h *HistoryView) SetPlaceholder(text string) {
	h.placeholder = text
	h.refresh()
}

// SetIndicator updates the typing indicator frame.
func (h *HistoryView) SetIndicator(frame string) {
	h.opts.Indicator = frame
	if n := len(h.turns); n > 0 && h.turns[n-1].Active() {
		h.refresh()
	}
}

// Turns returns the displayed history.
func (h *HistoryView) Turns() []conversation.TurnSnapshot {
	return h.turns
}

// PageUp scrolls up by one page and stops following new output.
func (h *HistoryView) PageUp() {
	h.viewport.PageUp()
	h.follow = h.viewport.AtBottom()
}

// PageDown scrolls down by one page. Reaching the bottom resumes following.
func (h *HistoryView) PageDown() {
	h.viewport.PageDown()
	h.follow = h.viewport.AtBottom()
}

func (h *HistoryView) refresh() {
	if len(h.turns) == 0 {
		h.viewport.SetContent(h.placeholder)
		return
	}
	parts := make([]string, 0, len(h.turns))
	for _, t := range h.turns {
		if t.Active() {
			parts = append(parts, render.Turn(t, h.opts))
			continue
		}
		out, ok := h.cache[t.ID]
		if !ok {
			out = render.Turn(t, h.opts)
			h.cache[t.ID] = out
		}
		parts = append(parts, out)
	}
	h.viewport.SetContent(strings.Join(parts, "\n\n"))
	if h.follow {
		h.viewport.GotoBottom()
	}
}

// Update handles viewport messages such as mouse wheel events.
func (h HistoryView) Update(msg tea.Msg) (HistoryView, tea.Cmd) {
	var cmd tea.Cmd
	h.viewport, cmd = h.viewport.Update(msg)
	h.follow = h.viewport.AtBottom()
	return h, cmd
}

// View renders the viewport.
func (h HistoryView) View() string {
	return h.viewport.View()
}
