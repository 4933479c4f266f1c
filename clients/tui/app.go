package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/duochat/clients/tui/atoms"
	"github.com/dohr-michael/duochat/clients/tui/molecules"
	"github.com/dohr-michael/duochat/clients/tui/organisms"
	"github.com/dohr-michael/duochat/internal/aggregator"
	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/render"
)

const emptyPromptNotice = "Please enter a prompt."

// Model is the root bubbletea model: HISTORY | INPUT | STATUS.
//
// It never calls the aggregator from Update directly. Submit and Abandon
// trigger a render, and the render callback sends into the program, so they
// run as commands.
type Model struct {
	ctx      context.Context
	agg      *aggregator.Aggregator
	reloader *config.Reloader
	markdown *render.Markdown

	history   organisms.HistoryView
	input     molecules.PromptInput
	status    organisms.StatusBar
	indicator atoms.Indicator

	examples []string

	width    int
	height   int
	quitting bool
}

// NewModel creates the root model.
func NewModel(ctx context.Context, agg *aggregator.Aggregator, reloader *config.Reloader) Model {
	cfg := reloader.Current()
	md := render.NewMarkdown()

	status := organisms.NewStatusBar(StatusBarStyle, NoticeStyle)
	status.SetSession(agg.Session().ID())
	status.SetEndpoint(cfg.Endpoint.URL, cfg.Endpoint.Transport)

	history := organisms.NewHistoryView(80, 20, renderOptions(cfg, agg.Primary(), md))
	history.SetPlaceholder(examplesPlaceholder(cfg.Prompts.Examples))

	return Model{
		ctx:       ctx,
		agg:       agg,
		reloader:  reloader,
		markdown:  md,
		history:   history,
		input:     molecules.NewPromptInput(),
		status:    status,
		indicator: atoms.NewIndicator(IndicatorColor),
		examples:  cfg.Prompts.Examples,
	}
}

func renderOptions(cfg *config.Config, primary string, md *render.Markdown) render.Options {
	opts := render.Options{
		Primary: primary,
		Label:   cfg.Sources.Label,
	}
	if cfg.Render.MarkdownEnabled() {
		opts.Markdown = md
	}
	return opts
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case HistoryMsg:
		return m.handleHistory(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.indicator, cmd = m.indicator.Update(msg)
		m.history.SetIndicator(m.indicator.View())
		return m, cmd

	case molecules.EmptySubmitMsg:
		m.status.SetNotice(emptyPromptNotice, true)
		return m, nil

	case molecules.SubmitMsg:
		if strings.HasPrefix(msg.Text, "/") {
			return m.handleSlashCommand(msg.Text)
		}
		m.status.ClearNotice()
		return m, m.submit(msg.Text)

	case submitErrMsg:
		m.status.SetNotice(fmt.Sprintf("Submit failed: %v", msg.err), true)
		return m, nil

	case reloadedMsg:
		if msg.err != nil {
			m.status.SetNotice(fmt.Sprintf("Reload failed: %v", msg.err), true)
			return m, nil
		}
		m.history.SetOptions(renderOptions(msg.cfg, m.agg.Primary(), m.markdown))
		m.examples = msg.cfg.Prompts.Examples
		m.history.SetPlaceholder(examplesPlaceholder(m.examples))
		m.status.SetEndpoint(msg.cfg.Endpoint.URL, msg.cfg.Endpoint.Transport)
		if len(msg.changed) == 0 {
			m.status.SetNotice("Configuration reloaded, nothing changed.", false)
			return m, nil
		}
		m.status.SetNotice(fmt.Sprintf("Configuration reloaded (%s).", strings.Join(msg.changed, ", ")), false)
		return m, nil
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.status.Streaming() {
			agg := m.agg
			return m, func() tea.Msg {
				agg.Abandon()
				return nil
			}
		}
		m.status.ClearNotice()
		return m, nil

	case tea.KeyPgUp:
		m.history.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.history.PageDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleHistory(msg HistoryMsg) (tea.Model, tea.Cmd) {
	m.history.SetTurns(msg.Turns)
	m.status.SetTurns(len(msg.Turns))

	streaming := len(msg.Turns) > 0 && msg.Turns[len(msg.Turns)-1].Active()
	m.status.SetStreaming(streaming)
	if streaming {
		return m, m.indicator.Start()
	}
	m.indicator.Stop()
	return m, nil
}

func (m Model) submit(prompt string) tea.Cmd {
	ctx, agg := m.ctx, m.agg
	return func() tea.Msg {
		if _, err := agg.Submit(ctx, prompt); err != nil {
			return submitErrMsg{err: err}
		}
		return nil
	}
}

func (m Model) handleSlashCommand(text string) (tea.Model, tea.Cmd) {
	command := strings.Fields(text)[0]

	switch command {
	case "/quit":
		m.quitting = true
		return m, tea.Quit

	case "/status":
		m.status.SetNotice(m.status.Summary(), false)
		return m, nil

	case "/reload":
		r := m.reloader
		return m, func() tea.Msg {
			changed, err := r.Reload()
			if err != nil {
				return reloadedMsg{err: err}
			}
			return reloadedMsg{cfg: r.Current(), changed: changed}
		}

	case "/example":
		fields := strings.Fields(text)
		n := 0
		if len(fields) == 2 {
			n, _ = strconv.Atoi(fields[1])
		}
		if n < 1 || n > len(m.examples) {
			m.status.SetNotice(fmt.Sprintf("Usage: /example N (1-%d)", len(m.examples)), true)
			return m, nil
		}
		m.status.ClearNotice()
		return m, m.submit(m.examples[n-1])

	default:
		m.status.SetNotice(fmt.Sprintf("Unknown command: %s (try /example N, /status, /reload, /quit)", command), true)
		return m, nil
	}
}

func examplesPlaceholder(examples []string) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(render.MutedStyle.Render("Try an example with /example N:"))
	for i, ex := range examples {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, ex)
	}
	return b.String()
}

func (m *Model) resize() {
	const chrome = 4 // input with top and bottom border, status bar
	m.history.SetSize(m.width, max(m.height-chrome, 3))
	m.input.SetWidth(max(m.width-2, 10))
	m.status.SetWidth(m.width)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.history.View(),
		InputBorderStyle.Width(m.width).Render(m.input.View()),
		m.status.View(),
	)
}
