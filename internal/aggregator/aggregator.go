// Package aggregator turns response streams into conversation turns.
//
// An Aggregator owns one Session. Each Submit starts a new turn and opens one
// stream; a single pump goroutine applies that stream's events to the turn in
// arrival order and asks the renderer to redraw after every change.
package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/stream"
	"github.com/dohr-michael/duochat/internal/transport"
)

var (
	// ErrEmptyPrompt is returned by Submit for an empty or blank prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("aggregator closed")
)

// DefaultPrimary is the source that receives the error marker when no
// primary is configured.
const DefaultPrimary = "gemini"

// RenderFunc receives the full history after every change. Calls are
// serialized and always carry the latest state. It must not call back into
// the Aggregator.
type RenderFunc func(turns []conversation.TurnSnapshot)

// Options configures an Aggregator.
type Options struct {
	Session        *conversation.Session // nil creates a new session
	Primary        string
	SendHistory    bool
	SecondaryModel string
	Render         RenderFunc
}

// Aggregator accumulates streamed chunks into the session history.
type Aggregator struct {
	transport      transport.Transport
	session        *conversation.Session
	primary        string
	sendHistory    bool
	secondaryModel string
	render         RenderFunc

	mu     sync.Mutex
	cur    *Handle
	closed bool
	wg     sync.WaitGroup

	renderMu sync.Mutex
}

// New creates an aggregator that opens streams with tr.
func New(tr transport.Transport, opts Options) *Aggregator {
	a := &Aggregator{
		transport:      tr,
		session:        opts.Session,
		primary:        opts.Primary,
		sendHistory:    opts.SendHistory,
		secondaryModel: opts.SecondaryModel,
		render:         opts.Render,
	}
	if a.session == nil {
		a.session = conversation.NewSession()
	}
	if a.primary == "" {
		a.primary = DefaultPrimary
	}
	return a
}

// Session returns the history owned by the aggregator.
func (a *Aggregator) Session() *conversation.Session {
	return a.session
}

// Primary returns the source that receives the error marker.
func (a *Aggregator) Primary() string {
	return a.primary
}

// ErrorMarker is the content shown in place of the primary response when a
// turn fails.
func ErrorMarker(message string) string {
	return "Error: " + message
}

// Submit starts a new turn for prompt and opens its stream. Any stream still
// open is abandoned first. Cancelling ctx abandons the new stream.
func (a *Aggregator) Submit(ctx context.Context, prompt string) (*Handle, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	prev := a.detachLocked()

	tr := a.transport
	req := transport.Request{Prompt: prompt, SecondaryModel: a.secondaryModel}
	if a.sendHistory {
		req.History = a.session.Messages(a.primary)
	}

	snap := a.session.Begin(prompt)
	sctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		a:      a,
		turnID: snap.ID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.cur = h
	a.wg.Add(1)
	a.mu.Unlock()

	slog.Debug("turn started", "session", a.session.ID(), "turn", h.turnID, "history", len(req.History))
	a.emit()
	if prev != nil {
		prev.retire()
	}

	go a.pump(sctx, tr, h, req)
	return h, nil
}

// Reconfigure replaces the transport and request options used by later
// submissions. An open stream keeps its transport.
func (a *Aggregator) Reconfigure(tr transport.Transport, sendHistory bool, secondaryModel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transport = tr
	a.sendHistory = sendHistory
	a.secondaryModel = secondaryModel
}

// OnEvent applies ev to the active turn. It returns conversation.ErrFrozen
// when no turn is active, and the session error when ev is rejected, such as
// conversation.ErrSourceComplete for a chunk after a whole value.
func (a *Aggregator) OnEvent(ev stream.Event) error {
	a.mu.Lock()
	h := a.cur
	a.mu.Unlock()
	if h == nil {
		return conversation.ErrFrozen
	}
	_, err := a.apply(h, ev)
	return err
}

// Abandon closes the open stream, if any, and freezes its turn with whatever
// it accumulated.
func (a *Aggregator) Abandon() {
	a.mu.Lock()
	h := a.detachLocked()
	a.mu.Unlock()
	if h != nil {
		a.emit()
		h.retire()
	}
}

// Close abandons the open stream and refuses further submissions. It waits
// for the pump goroutine to exit.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	a.closed = true
	h := a.detachLocked()
	a.mu.Unlock()
	if h != nil {
		a.emit()
		h.retire()
	}
	a.wg.Wait()
	return nil
}

// Streaming reports whether a stream is open.
func (a *Aggregator) Streaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cur != nil
}

// detachLocked freezes the active turn and returns its handle. The caller
// retires the handle after unlocking, since closing a stream may wait on the
// peer.
func (a *Aggregator) detachLocked() *Handle {
	h := a.cur
	if h == nil {
		return nil
	}
	a.cur = nil
	if err := a.session.Freeze(h.turnID); err != nil {
		slog.Warn("freeze abandoned turn", "turn", h.turnID, "error", err)
	}
	slog.Debug("stream abandoned", "turn", h.turnID)
	return h
}

func (a *Aggregator) pump(ctx context.Context, tr transport.Transport, h *Handle, req transport.Request) {
	defer a.wg.Done()
	defer h.finish()
	defer h.cancel()

	s, err := tr.Open(ctx, req)
	if err != nil {
		a.fail(ctx, h, err)
		return
	}
	if !h.attach(s) {
		s.Close()
		return
	}
	defer s.Close()

	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			a.apply(h, stream.End())
			return
		}
		if err != nil {
			a.fail(ctx, h, err)
			return
		}
		if more, _ := a.apply(h, ev); !more {
			return
		}
	}
}

// apply mutates the turn owned by h. It reports whether h still owns the
// active turn, and the session error when the event was dropped.
func (a *Aggregator) apply(h *Handle, ev stream.Event) (bool, error) {
	a.mu.Lock()
	if a.cur != h {
		a.mu.Unlock()
		slog.Debug("discarding event from abandoned stream", "turn", h.turnID, "event", ev.String())
		return false, conversation.ErrFrozen
	}

	var err error
	switch ev.Kind {
	case stream.KindChunk:
		if ev.Whole {
			err = a.session.SetWhole(h.turnID, ev.Source, ev.Text)
		} else {
			err = a.session.Append(h.turnID, ev.Source, ev.Text)
		}
	case stream.KindEnd:
		err = a.session.Freeze(h.turnID)
		a.cur = nil
	case stream.KindError:
		err = a.session.Fail(h.turnID, a.primary, ErrorMarker(ev.Message), ev.Message)
		a.cur = nil
	}
	a.mu.Unlock()

	if err != nil {
		slog.Warn("dropping event", "turn", h.turnID, "event", ev.String(), "error", err)
	} else {
		switch ev.Kind {
		case stream.KindEnd:
			slog.Debug("turn finished", "turn", h.turnID)
		case stream.KindError:
			slog.Info("turn failed", "turn", h.turnID, "error", ev.Message)
		}
		a.emit()
	}

	if ev.Terminal() {
		h.retire()
	}
	return !ev.Terminal(), err
}

// fail ends the turn after a transport failure. A failure caused by
// cancellation freezes the turn without an error marker.
func (a *Aggregator) fail(ctx context.Context, h *Handle, err error) {
	if ctx.Err() != nil || errors.Is(err, stream.ErrClosed) {
		a.mu.Lock()
		var detached *Handle
		if a.cur == h {
			detached = a.detachLocked()
		}
		a.mu.Unlock()
		if detached != nil {
			a.emit()
			detached.retire()
		}
		return
	}
	slog.Warn("stream failed", "turn", h.turnID, "error", err)
	a.apply(h, stream.Fail(errorMessage(err)))
}

func errorMessage(err error) string {
	var terr *stream.TransportError
	if errors.As(err, &terr) && terr.Op == "status" && terr.Err != nil {
		return terr.Err.Error()
	}
	return err.Error()
}

func (a *Aggregator) emit() {
	if a.render == nil {
		return
	}
	a.renderMu.Lock()
	defer a.renderMu.Unlock()
	a.render(a.session.Turns())
}
