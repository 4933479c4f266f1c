// Package conversation holds the in-memory history of a chat session.
//
// History is append-only and lives for the duration of the process. Only the
// active turn may be mutated, and only by appending.
package conversation

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// TurnState represents the lifecycle state of a turn.
type TurnState string

const (
	TurnActive TurnState = "active"
	TurnFrozen TurnState = "frozen"
)

// turn is the mutable record owned by a Session.
type turn struct {
	id         string
	prompt     string
	state      TurnState
	failed     bool
	err        string
	responses  map[string]*strings.Builder
	order      []string
	complete   map[string]bool
	startedAt  time.Time
	finishedAt time.Time
}

func newTurn(id, prompt string) *turn {
	return &turn{
		id:        id,
		prompt:    prompt,
		state:     TurnActive,
		responses: make(map[string]*strings.Builder),
		complete:  make(map[string]bool),
		startedAt: time.Now(),
	}
}

func (t *turn) builder(source string) *strings.Builder {
	b, ok := t.responses[source]
	if !ok {
		b = &strings.Builder{}
		t.responses[source] = b
		t.order = append(t.order, source)
	}
	return b
}

func (t *turn) freeze() {
	if t.state == TurnFrozen {
		return
	}
	t.state = TurnFrozen
	t.finishedAt = time.Now()
}

func (t *turn) snapshot() TurnSnapshot {
	responses := make(map[string]string, len(t.responses))
	for src, b := range t.responses {
		responses[src] = b.String()
	}
	return TurnSnapshot{
		ID:         t.id,
		Prompt:     t.prompt,
		State:      t.state,
		Failed:     t.failed,
		Error:      t.err,
		Sources:    slices.Clone(t.order),
		Responses:  responses,
		Complete:   maps.Clone(t.complete),
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
}

// TurnSnapshot is an immutable copy of a turn, safe to hand to renderers.
type TurnSnapshot struct {
	ID         string            `json:"id" yaml:"id"`
	Prompt     string            `json:"prompt" yaml:"prompt"`
	State      TurnState         `json:"state" yaml:"state"`
	Failed     bool              `json:"failed" yaml:"failed"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Sources    []string          `json:"sources" yaml:"sources"` // order of first arrival
	Responses  map[string]string `json:"responses" yaml:"responses"`
	Complete   map[string]bool   `json:"-" yaml:"-"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// Response returns the accumulated text for source.
func (t TurnSnapshot) Response(source string) string {
	return t.Responses[source]
}

// Active reports whether the turn still accepts chunks.
func (t TurnSnapshot) Active() bool {
	return t.State == TurnActive
}

// Duration returns the elapsed time of a frozen turn, or the time since it
// started for an active one.
func (t TurnSnapshot) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
