// Package render turns conversation snapshots into terminal output.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
)

const minWrap = 20

// Palette used by the markdown style. Hex values shared with the lipgloss
// styles in styles.go.
const (
	hexText    = "#E5E7EB"
	hexAccent  = "#0EA5E9"
	hexSecond  = "#F97316"
	hexError   = "#EF4444"
	hexCode    = "#FBBF24"
	hexMuted   = "#6B7280"
	hexCodeBg  = "#1F2937"
	hexLink    = "#60A5FA"
	hexStrong  = "#FFFFFF"
	hexDivider = "#374151"
)

func str(s string) *string { return &s }
func flag(b bool) *bool    { return &b }
func size(u uint) *uint    { return &u }

func heading(color, prefix string, bold bool) ansi.StyleBlock {
	return ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{
		Color:  str(color),
		Bold:   flag(bold),
		Prefix: prefix,
	}}
}

// styleConfig is a dark palette for chat responses. Headings use the accent
// color, code uses amber on a slate background.
func styleConfig() ansi.StyleConfig {
	text := ansi.StylePrimitive{Color: str(hexText)}
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{StylePrimitive: text, Margin: size(0)},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{Color: str(hexMuted), Italic: flag(true)},
			Indent:         size(1),
			IndentToken:    str("▏ "),
		},
		List:    ansi.StyleList{LevelIndent: 2, StyleBlock: ansi.StyleBlock{StylePrimitive: text}},
		Heading: heading(hexAccent, "", true),
		H1:      heading(hexAccent, "# ", true),
		H2:      heading(hexAccent, "## ", true),
		H3:      heading(hexSecond, "### ", true),
		H4:      heading(hexSecond, "#### ", false),
		H5:      heading(hexMuted, "##### ", false),
		H6:      heading(hexMuted, "###### ", false),

		Strikethrough:  ansi.StylePrimitive{CrossedOut: flag(true)},
		Emph:           ansi.StylePrimitive{Italic: flag(true), Color: str(hexText)},
		Strong:         ansi.StylePrimitive{Bold: flag(true), Color: str(hexStrong)},
		HorizontalRule: ansi.StylePrimitive{Color: str(hexDivider), Format: "\n────────────────────────────────\n"},
		Item:           ansi.StylePrimitive{BlockPrefix: "• ", Color: str(hexText)},
		Enumeration:    ansi.StylePrimitive{BlockPrefix: ". ", Color: str(hexText)},
		Task:           ansi.StyleTask{StylePrimitive: text, Ticked: "[x] ", Unticked: "[ ] "},

		Link:      ansi.StylePrimitive{Color: str(hexLink), Underline: flag(true)},
		LinkText:  ansi.StylePrimitive{Color: str(hexLink), Bold: flag(true)},
		Image:     ansi.StylePrimitive{Color: str(hexCode), Underline: flag(true)},
		ImageText: ansi.StylePrimitive{Color: str(hexCode), Format: "[image] {{.text}}"},

		Code: ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{
			Color:           str(hexCode),
			BackgroundColor: str(hexCodeBg),
			Prefix:          " ",
			Suffix:          " ",
		}},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{StylePrimitive: text, Margin: size(1)},
			Chroma: &ansi.Chroma{
				Text:          text,
				Error:         ansi.StylePrimitive{Color: str(hexError)},
				Comment:       ansi.StylePrimitive{Color: str(hexMuted), Italic: flag(true)},
				Keyword:       ansi.StylePrimitive{Color: str(hexAccent), Bold: flag(true)},
				KeywordType:   ansi.StylePrimitive{Color: str(hexSecond)},
				Operator:      ansi.StylePrimitive{Color: str(hexCode)},
				Punctuation:   text,
				Name:          text,
				NameBuiltin:   ansi.StylePrimitive{Color: str(hexSecond)},
				NameFunction:  ansi.StylePrimitive{Color: str(hexLink)},
				LiteralNumber: ansi.StylePrimitive{Color: str(hexCode)},
				LiteralString: ansi.StylePrimitive{Color: str(hexSecond)},
				Background:    ansi.StylePrimitive{BackgroundColor: str(hexCodeBg)},
			},
		},
		Table: ansi.StyleTable{
			StyleBlock:      ansi.StyleBlock{StylePrimitive: text},
			CenterSeparator: str("┼"),
			ColumnSeparator: str("│"),
			RowSeparator:    str("─"),
		},
		DefinitionTerm:        ansi.StylePrimitive{Color: str(hexAccent), Bold: flag(true)},
		DefinitionDescription: ansi.StylePrimitive{Color: str(hexText), BlockPrefix: "  "},
	}
}

// Markdown renders markdown with glamour. Renderers are built lazily and
// cached per wrap width. It is safe for concurrent use.
type Markdown struct {
	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates an empty renderer cache.
func NewMarkdown() *Markdown {
	return &Markdown{renderers: make(map[int]*glamour.TermRenderer)}
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	if width < minWrap {
		width = minWrap
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(styleConfig()),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, err
	}
	m.renderers[width] = r
	return r, nil
}

// Render returns content rendered for width columns. On any failure the raw
// content is returned.
func (m *Markdown) Render(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	r, err := m.renderer(width)
	if err != nil {
		return content
	}

	// TermRenderer keeps per-render state.
	m.mu.Lock()
	out, err := r.Render(content)
	m.mu.Unlock()
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
