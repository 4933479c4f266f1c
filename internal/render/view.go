package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dohr-michael/duochat/internal/conversation"
)

// DefaultIndicator is shown for a turn that is active but has no text yet.
const DefaultIndicator = "…"

// Options controls View.
type Options struct {
	Width     int
	Primary   string              // source whose label uses the primary style
	Label     func(string) string // display name of a source; nil uses the name
	Markdown  *Markdown           // nil renders responses as plain text
	Indicator string              // typing indicator, e.g. a spinner frame
}

func (o Options) label(source string) string {
	if o.Label == nil {
		return source
	}
	return o.Label(source)
}

func (o Options) indicator() string {
	if o.Indicator == "" {
		return DefaultIndicator
	}
	return o.Indicator
}

// View renders the whole history, oldest turn first.
func View(turns []conversation.TurnSnapshot, opts Options) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, Turn(t, opts))
	}
	return strings.Join(parts, "\n\n")
}

// Turn renders one turn: the prompt as plain text, then every response
// under its source label. While the turn is active and the primary source is
// still empty, the primary label carries the typing indicator.
func Turn(t conversation.TurnSnapshot, opts Options) string {
	var b strings.Builder
	b.WriteString(PromptStyle.Render("You:"))
	b.WriteString(" ")
	b.WriteString(t.Prompt)

	for _, src := range t.Sources {
		text := t.Response(src)
		if t.Active() && text == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(labelStyle(opts, src).Render(opts.label(src) + ":"))
		b.WriteString("\n")

		switch {
		case t.Failed && src == opts.Primary:
			b.WriteString(ErrorStyle.Render(text))
		case opts.Markdown != nil:
			b.WriteString(opts.Markdown.Render(text, opts.Width))
		default:
			b.WriteString(text)
		}
	}

	if t.Active() && t.Response(opts.Primary) == "" {
		b.WriteString("\n")
		b.WriteString(labelStyle(opts, opts.Primary).Render(opts.label(opts.Primary) + ":"))
		b.WriteString(" ")
		b.WriteString(MutedStyle.Render(opts.indicator()))
	}
	return b.String()
}

func labelStyle(opts Options, source string) lipgloss.Style {
	if source == opts.Primary {
		return PrimaryLabelStyle
	}
	return SecondaryLabelStyle
}
