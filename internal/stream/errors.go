package stream

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("stream closed")

// TransportError reports a failure to open or read a stream. It is terminal
// for the turn that owns the stream.
type TransportError struct {
	Op     string // "open", "read", "status"
	Status int    // HTTP status, when Op is "status"
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports one malformed frame. Streams skip the frame and continue.
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %q: %v", truncate(e.Frame, 80), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
