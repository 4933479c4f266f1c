package conversation

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrFrozen is returned when mutating a turn that is not the active one.
	ErrFrozen = errors.New("turn is frozen")
	// ErrSourceComplete is returned when appending to a source whose whole
	// value was already received.
	ErrSourceComplete = errors.New("source already complete")
	// ErrSourceNotEmpty is returned when a whole value arrives for a source
	// that already has content.
	ErrSourceNotEmpty = errors.New("source already has content")
)

// Role of a history message sent as context.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// Message is one prior exchange entry carried as request context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the conversation history of one client session. At most one turn
// is active at a time; every other turn is frozen.
type Session struct {
	mu     sync.RWMutex
	id     string
	turns  []*turn
	byID   map[string]*turn
	active *turn
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		id:   generateID("sess_"),
		byID: make(map[string]*turn),
	}
}

func generateID(prefix string) string {
	u := uuid.NewString()
	return prefix + strings.ReplaceAll(u[:13], "-", "")
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Begin appends a new active turn for prompt. A previously active turn is
// frozen first.
func (s *Session) Begin(prompt string) TurnSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.freeze()
	}

	t := newTurn(generateID("turn_"), prompt)
	s.turns = append(s.turns, t)
	s.byID[t.id] = t
	s.active = t
	return t.snapshot()
}

// mutable returns the turn if it is the active one.
func (s *Session) mutable(turnID string) (*turn, error) {
	if s.active == nil || s.active.id != turnID {
		return nil, ErrFrozen
	}
	return s.active, nil
}

// Append adds text to the accumulated response of source.
func (s *Session) Append(turnID, source, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.mutable(turnID)
	if err != nil {
		return err
	}
	if t.complete[source] {
		return ErrSourceComplete
	}
	t.builder(source).WriteString(text)
	return nil
}

// SetWhole sets the complete value of source. The source must still be empty;
// afterwards it accepts no more text.
func (s *Session) SetWhole(turnID, source, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.mutable(turnID)
	if err != nil {
		return err
	}
	if t.complete[source] {
		return ErrSourceComplete
	}
	b := t.builder(source)
	if b.Len() > 0 {
		return ErrSourceNotEmpty
	}
	b.WriteString(text)
	t.complete[source] = true
	return nil
}

// Fail replaces the content of source with marker, marks the turn failed with
// message as its error and freezes it. message may be empty.
func (s *Session) Fail(turnID, source, marker, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.mutable(turnID)
	if err != nil {
		return err
	}
	b := t.builder(source)
	b.Reset()
	b.WriteString(marker)
	t.failed = true
	t.err = message
	t.freeze()
	s.active = nil
	return nil
}

// Freeze ends the turn. Freezing an already frozen turn is a no-op.
func (s *Session) Freeze(turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[turnID]
	if !ok {
		return errors.New("unknown turn " + turnID)
	}
	t.freeze()
	if s.active == t {
		s.active = nil
	}
	return nil
}

// Active returns the active turn, if any.
func (s *Session) Active() (TurnSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return TurnSnapshot{}, false
	}
	return s.active.snapshot(), true
}

// Turn returns the turn with the given ID.
func (s *Session) Turn(id string) (TurnSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return TurnSnapshot{}, false
	}
	return t.snapshot(), true
}

// Turns returns snapshots of all turns in display order.
func (s *Session) Turns() []TurnSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TurnSnapshot, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.snapshot()
	}
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Messages returns the frozen, error-free turns as alternating user/ai
// messages, using the response of primary as the ai content.
func (s *Session) Messages(primary string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []Message
	for _, t := range s.turns {
		if t.state != TurnFrozen || t.failed {
			continue
		}
		msgs = append(msgs, Message{Role: RoleUser, Content: t.prompt})
		if b, ok := t.responses[primary]; ok && b.Len() > 0 {
			msgs = append(msgs, Message{Role: RoleAI, Content: b.String()})
		}
	}
	return msgs
}
