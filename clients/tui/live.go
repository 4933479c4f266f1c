package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/duochat/clients/tui/atoms"
	"github.com/dohr-michael/duochat/internal/aggregator"
	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/render"
)

// Live redraws one streaming turn in place, inline below the shell prompt.
// The region is cleared once the turn freezes so the caller can print the
// final rendering into the scrollback.
type Live struct {
	out     io.Writer
	opts    render.Options
	program atomic.Pointer[tea.Program]
}

// NewLive creates a live view writing to out.
func NewLive(out io.Writer, opts render.Options) *Live {
	return &Live{out: out, opts: opts}
}

// Render forwards the history to the running view. Use it as the
// aggregator's render callback.
func (l *Live) Render(turns []conversation.TurnSnapshot) {
	if p := l.program.Load(); p != nil {
		p.Send(HistoryMsg{Turns: turns})
	}
}

// Run starts the view, calls submit from the program loop and returns the
// handle once its turn is frozen. Cancelling ctx stops the view early.
func (l *Live) Run(ctx context.Context, submit func() (*aggregator.Handle, error)) (*aggregator.Handle, error) {
	p := tea.NewProgram(
		newLiveModel(l.opts, submit),
		tea.WithOutput(l.out),
		tea.WithInput(nil),
		tea.WithContext(ctx),
		tea.WithoutSignalHandler(),
	)
	l.program.Store(p)
	final, err := p.Run()
	l.program.Store(nil)

	m, _ := final.(liveModel)
	if m.err != nil {
		return nil, m.err
	}
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return m.handle, err
	}
	return m.handle, nil
}

type liveSubmittedMsg struct {
	handle *aggregator.Handle
	err    error
}

type liveModel struct {
	opts      render.Options
	submit    func() (*aggregator.Handle, error)
	indicator atoms.Indicator

	handle *aggregator.Handle
	turn   conversation.TurnSnapshot
	height int
	done   bool
	err    error
}

func newLiveModel(opts render.Options, submit func() (*aggregator.Handle, error)) liveModel {
	return liveModel{
		opts:      opts,
		submit:    submit,
		indicator: atoms.NewIndicator(IndicatorColor),
	}
}

func (m liveModel) Init() tea.Cmd {
	submit := m.submit
	return func() tea.Msg {
		h, err := submit()
		return liveSubmittedMsg{handle: h, err: err}
	}
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		if m.opts.Width == 0 || msg.Width < m.opts.Width {
			m.opts.Width = msg.Width
		}
		return m, nil

	case liveSubmittedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		m.handle = msg.handle
		return m.checkDone()

	case HistoryMsg:
		if len(msg.Turns) > 0 {
			m.turn = msg.Turns[len(msg.Turns)-1]
		}
		start := m.indicator.Start()
		model, cmd := m.checkDone()
		return model, tea.Batch(start, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.indicator, cmd = m.indicator.Update(msg)
		return m, cmd
	}
	return m, nil
}

// checkDone quits once the submitted turn has frozen. History can arrive
// before the handle does.
func (m liveModel) checkDone() (tea.Model, tea.Cmd) {
	if m.handle == nil || m.turn.ID != m.handle.TurnID() || m.turn.Active() {
		return m, nil
	}
	m.done = true
	m.indicator.Stop()
	return m, tea.Quit
}

func (m liveModel) View() string {
	if m.done || m.turn.ID == "" {
		return ""
	}
	opts := m.opts
	opts.Indicator = m.indicator.View()
	view := render.Turn(m.turn, opts)

	// Only the tail fits; the full turn is printed after the view closes.
	if m.height > 1 {
		lines := strings.Split(view, "\n")
		if len(lines) >= m.height {
			view = strings.Join(lines[len(lines)-m.height+1:], "\n")
		}
	}
	return view
}
