// Package stream decodes server-pushed response frames into typed events.
package stream

import "fmt"

// Kind discriminates the Event variants.
type Kind string

const (
	KindChunk Kind = "chunk"
	KindEnd   Kind = "end"
	KindError Kind = "error"
)

// Event is one decoded unit of a response stream.
//
// Only the fields relevant to Kind are set: Source and Text for chunks,
// Message for errors.
type Event struct {
	Kind    Kind
	Source  string
	Text    string
	Whole   bool // chunk carried the complete value of Source
	Message string
}

// Chunk returns an incremental text event for source.
func Chunk(source, text string) Event {
	return Event{Kind: KindChunk, Source: source, Text: text}
}

// Whole returns a chunk event carrying the complete value of source.
func Whole(source, text string) Event {
	return Event{Kind: KindChunk, Source: source, Text: text, Whole: true}
}

// End returns the end-of-stream event.
func End() Event {
	return Event{Kind: KindEnd}
}

// Fail returns an error event.
func Fail(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == KindEnd || e.Kind == KindError
}

func (e Event) String() string {
	switch e.Kind {
	case KindChunk:
		if e.Whole {
			return fmt.Sprintf("whole(%s, %q)", e.Source, e.Text)
		}
		return fmt.Sprintf("chunk(%s, %q)", e.Source, e.Text)
	case KindError:
		return fmt.Sprintf("error(%q)", e.Message)
	default:
		return string(e.Kind)
	}
}
