package aggregator

import (
	"context"
	"sync"

	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/stream"
)

// Handle tracks the stream of one submitted turn.
type Handle struct {
	a          *Aggregator
	turnID     string
	cancel     context.CancelFunc
	done       chan struct{}
	finishOnce sync.Once

	mu       sync.Mutex
	stream   stream.Stream
	released bool
}

// TurnID returns the ID of the turn this handle feeds.
func (h *Handle) TurnID() string {
	return h.turnID
}

// Done is closed once the turn is frozen. Closing the stream may still be in
// progress; Aggregator.Close waits for that.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the turn is frozen and returns its final snapshot.
func (h *Handle) Wait(ctx context.Context) (conversation.TurnSnapshot, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return conversation.TurnSnapshot{}, ctx.Err()
	}
	snap, _ := h.a.session.Turn(h.turnID)
	return snap, nil
}

// attach records the opened stream. It returns false if the handle was
// released while the stream was opening.
func (h *Handle) attach(s stream.Stream) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.stream = s
	return true
}

func (h *Handle) finish() {
	h.finishOnce.Do(func() { close(h.done) })
}

// retire marks the turn finished and closes its stream.
func (h *Handle) retire() {
	h.finish()
	h.release()
}

// release cancels the stream context and closes the stream.
func (h *Handle) release() {
	h.cancel()
	h.mu.Lock()
	s := h.stream
	already := h.released
	h.released = true
	h.mu.Unlock()
	if s != nil && !already {
		s.Close()
	}
}
