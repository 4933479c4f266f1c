// Package mockserver replays scripted response frames over SSE and WebSocket.
//
// It stands in for a chat endpoint during local development and tests. It
// never calls a model: every frame comes from a Script.
package mockserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dohr-michael/duochat/internal/stream"
)

const promptPlaceholder = "{{prompt}}"

// Script is an ordered list of raw frame payloads. Frames are sent verbatim,
// so a script may deliberately contain malformed frames.
type Script struct {
	Frames []string
}

// LoadScript reads a JSONL script: one frame payload per non-empty line.
// Lines starting with "#" are comments.
func LoadScript(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return Script{}, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// ParseScript reads a JSONL script from r.
func ParseScript(r io.Reader) (Script, error) {
	var s Script
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.Frames = append(s.Frames, line)
	}
	if err := scanner.Err(); err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	if len(s.Frames) == 0 {
		return Script{}, fmt.Errorf("script has no frames")
	}
	return s, nil
}

// ScriptFromEvents encodes events as a script.
func ScriptFromEvents(events ...stream.Event) (Script, error) {
	s := Script{Frames: make([]string, 0, len(events))}
	for _, ev := range events {
		data, err := stream.EncodeFrame(ev)
		if err != nil {
			return Script{}, err
		}
		s.Frames = append(s.Frames, string(data))
	}
	return s, nil
}

// DemoScript mirrors a dual-provider backend: the comparison model answers in
// one whole value, then the primary model streams word by word.
func DemoScript() Script {
	answer := "**Hello!** You asked: _" + promptPlaceholder + "_\n\n" +
		"This response is streamed from the fixture server:\n\n" +
		"- one chunk per word\n" +
		"- rendered as markdown\n\n" +
		"```go\nfmt.Println(\"duochat\")\n```\n"

	events := []stream.Event{stream.Whole("huggingface", "Comparison answer for: "+promptPlaceholder)}
	for _, word := range splitKeep(answer) {
		events = append(events, stream.Chunk("gemini", word))
	}
	events = append(events, stream.End())

	s, err := ScriptFromEvents(events...)
	if err != nil {
		panic(err)
	}
	return s
}

// splitKeep splits s after every space or newline, keeping the separators.
func splitKeep(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' || r == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// Render substitutes the prompt into every frame. The prompt is JSON-escaped
// so frames stay valid JSON.
func (s Script) Render(prompt string) [][]byte {
	escaped, _ := json.Marshal(prompt)
	esc := string(bytes.Trim(escaped, `"`))

	out := make([][]byte, len(s.Frames))
	for i, f := range s.Frames {
		out[i] = []byte(strings.ReplaceAll(f, promptPlaceholder, esc))
	}
	return out
}
