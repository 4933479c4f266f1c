package organisms

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// StatusBar shows the session, endpoint and stream state, or a one-line
// notice that replaces them until the next submission.
type StatusBar struct {
	sessionID string
	endpoint  string
	transport string
	turns     int
	streaming bool
	notice    string
	warn      bool
	width     int
	style     lipgloss.Style
	warnStyle lipgloss.Style
}

// NewStatusBar creates a status bar.
func NewStatusBar(style, warnStyle lipgloss.Style) StatusBar {
	return StatusBar{style: style, warnStyle: warnStyle}
}

// SetSession updates the session ID.
func (s *StatusBar) SetSession(id string) { s.sessionID = id }

// SetEndpoint updates the endpoint shown.
func (s *StatusBar) SetEndpoint(url, transport string) {
	s.endpoint = url
	s.transport = transport
}

// SetTurns updates the turn count.
func (s *StatusBar) SetTurns(n int) { s.turns = n }

// SetStreaming updates the stream state.
func (s *StatusBar) SetStreaming(on bool) { s.streaming = on }

// SetWidth updates the rendering width.
func (s *StatusBar) SetWidth(w int) { s.width = w }

// SetNotice shows msg in place of the status. warn selects the warning style.
func (s *StatusBar) SetNotice(msg string, warn bool) {
	s.notice = msg
	s.warn = warn
}

// ClearNotice restores the regular status line.
func (s *StatusBar) ClearNotice() {
	s.notice = ""
	s.warn = false
}

// Notice returns the current notice.
func (s *StatusBar) Notice() string { return s.notice }

// Streaming returns whether a stream is open.
func (s *StatusBar) Streaming() bool { return s.streaming }

// Summary is the text shown by /status.
func (s *StatusBar) Summary() string {
	state := "idle"
	if s.streaming {
		state = "streaming"
	}
	return fmt.Sprintf("session %s | %d turns | %s %s | %s", s.sessionID, s.turns, s.transport, s.endpoint, state)
}

// View renders the status bar.
func (s StatusBar) View() string {
	if s.notice != "" {
		style := s.style
		if s.warn {
			style = s.warnStyle
		}
		return style.Width(s.width).Render(" " + s.notice + " ")
	}

	sid := s.sessionID
	if len(sid) > 10 {
		sid = sid[:10]
	}
	state := ""
	if s.streaming {
		state = " | streaming (esc to stop)"
	}
	bar := fmt.Sprintf(" %s | %s %s | %d turns%s ", sid, s.transport, s.endpoint, s.turns, state)
	return s.style.Width(s.width).Render(bar)
}
