package stream

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stream is a finite, non-restartable sequence of events.
//
// Recv returns io.EOF once the stream is exhausted or after a terminal event
// has been delivered. Close may be called from another goroutine to abandon a
// blocked Recv.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// FrameReader yields raw frame payloads.
type FrameReader interface {
	Next() ([]byte, error)
}

// FrameStream turns raw frames into events. Malformed frames are logged and
// skipped.
type FrameStream struct {
	frames  FrameReader
	closer  io.Closer
	queue   []Event
	done    bool
	skipped int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewFrameStream wraps frames. closer, when non-nil, is closed with the stream.
func NewFrameStream(frames FrameReader, closer io.Closer) *FrameStream {
	return &FrameStream{frames: frames, closer: closer}
}

// NewSSEStream decodes an SSE body.
func NewSSEStream(body io.ReadCloser) *FrameStream {
	return NewFrameStream(NewDecoder(body), body)
}

// Recv returns the next event.
func (s *FrameStream) Recv() (Event, error) {
	for {
		if s.closed.Load() {
			return Event{}, ErrClosed
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			if ev.Terminal() {
				s.done = true
				s.queue = nil
			}
			return ev, nil
		}
		if s.done {
			return Event{}, io.EOF
		}

		data, err := s.frames.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return Event{}, io.EOF
			}
			if s.closed.Load() {
				return Event{}, ErrClosed
			}
			var derr *DecodeError
			if errors.As(err, &derr) {
				s.skipped++
				slog.Warn("skipping malformed frame", "error", err)
				continue
			}
			var terr *TransportError
			if errors.As(err, &terr) {
				return Event{}, err
			}
			return Event{}, &TransportError{Op: "read", Err: err}
		}

		events, err := DecodeFrame(data)
		if err != nil {
			s.skipped++
			slog.Warn("skipping malformed frame", "error", err)
			continue
		}
		s.queue = append(s.queue, events...)
	}
}

// Skipped returns the number of malformed frames dropped so far.
func (s *FrameStream) Skipped() int {
	return s.skipped
}

// Close releases the underlying reader. It is safe to call more than once.
func (s *FrameStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// All adapts s to a range-over-func sequence. Iteration stops at io.EOF; any
// other error is yielded once as the final element.
func All(s Stream) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
