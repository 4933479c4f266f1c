package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	chunkSuffix = "_chunk"
	doneMarker  = "[DONE]"
)

var (
	errEmptyFrame = errors.New("empty frame")
	errNotObject  = errors.New("frame is not a JSON object")
)

// DecodeFrame decodes one frame payload into events.
//
// Keys are read in document order: "<source>_chunk" yields a chunk, "event":"end"
// the end event, "error" an error event, and any other key a whole-value chunk
// for the source of that name. Content events are returned before terminal
// events so a frame that carries both never loses its content.
func DecodeFrame(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Frame: string(data), Err: errEmptyFrame}
	}
	if string(trimmed) == doneMarker {
		return []Event{End()}, nil
	}

	fail := func(err error) ([]Event, error) {
		return nil, &DecodeError{Frame: string(trimmed), Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fail(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fail(errNotObject)
	}

	var content, terminal []Event
	keys := 0
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fail(err)
		}
		key, _ := tok.(string)
		keys++

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fail(err)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return fail(fmt.Errorf("field %q: expected string, got %s", key, raw))
		}

		switch {
		case key == "event":
			// Only "end" is meaningful; other lifecycle markers are ignored.
			if value == "end" {
				terminal = append(terminal, End())
			}
		case key == "error":
			terminal = append(terminal, Fail(value))
		case strings.HasSuffix(key, chunkSuffix) && len(key) > len(chunkSuffix):
			content = append(content, Chunk(strings.TrimSuffix(key, chunkSuffix), value))
		case key == "":
			return fail(errors.New("empty key"))
		default:
			content = append(content, Whole(key, value))
		}
	}
	if _, err := dec.Token(); err != nil {
		return fail(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fail(errors.New("trailing data after object"))
	}
	if keys == 0 {
		return fail(errEmptyFrame)
	}

	return append(content, terminal...), nil
}

// EncodeFrame is the inverse of DecodeFrame for a single event. It is used by
// the fixture server and by tests.
func EncodeFrame(e Event) ([]byte, error) {
	var m map[string]string
	switch e.Kind {
	case KindChunk:
		if e.Whole {
			m = map[string]string{e.Source: e.Text}
		} else {
			m = map[string]string{e.Source + chunkSuffix: e.Text}
		}
	case KindEnd:
		m = map[string]string{"event": "end"}
	case KindError:
		m = map[string]string{"error": e.Message}
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return json.Marshal(m)
}
