package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dohr-michael/duochat/internal/conversation"
)

// Printer writes a streaming turn to a plain writer. Because responses only
// grow, each update prints just the new suffix. A label line is printed
// whenever output switches to a different source.
type Printer struct {
	w       io.Writer
	label   func(string) string
	turnID  string
	printed map[string]string
	current string
	ended   bool
}

// NewPrinter creates a printer. label may be nil.
func NewPrinter(w io.Writer, label func(string) string) *Printer {
	if label == nil {
		label = func(s string) string { return s }
	}
	return &Printer{w: w, label: label, printed: make(map[string]string)}
}

// Update prints whatever t gained since the previous call. Calling it with a
// different turn starts over.
func (p *Printer) Update(t conversation.TurnSnapshot) error {
	if t.ID != p.turnID {
		p.turnID = t.ID
		p.printed = make(map[string]string)
		p.current = ""
		p.ended = false
	}

	for _, src := range t.Sources {
		text := t.Response(src)
		prev := p.printed[src]
		if text == prev {
			continue
		}

		suffix, ok := strings.CutPrefix(text, prev)
		if !ok {
			// Replaced rather than appended (error marker).
			suffix = text
			if prev != "" {
				suffix = "\n" + text
			}
		}

		if src != p.current {
			if err := p.header(src); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(p.w, suffix); err != nil {
			return err
		}
		p.printed[src] = text
	}

	if !t.Active() && !p.ended {
		p.ended = true
		if p.current != "" {
			_, err := io.WriteString(p.w, "\n")
			return err
		}
	}
	return nil
}

func (p *Printer) header(src string) error {
	prefix := ""
	if p.current != "" {
		prefix = "\n\n"
	}
	p.current = src
	_, err := fmt.Fprintf(p.w, "%s[%s]\n", prefix, p.label(src))
	return err
}
