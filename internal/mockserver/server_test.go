package mockserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/duochat/internal/stream"
)

func testScript(t *testing.T) Script {
	t.Helper()
	s, err := ScriptFromEvents(
		stream.Whole("huggingface", "hf says {{prompt}}"),
		stream.Chunk("gemini", "Hi"),
		stream.Chunk("gemini", " there"),
		stream.End(),
	)
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, body io.ReadCloser) []stream.Event {
	t.Helper()
	var out []stream.Event
	for ev, err := range stream.All(stream.NewSSEStream(body)) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestParseScript(t *testing.T) {
	in := `
# comment
{"huggingface": "x"}

{"gemini_chunk": "y"}
{"event": "end"}
`
	s, err := ParseScript(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, s.Frames, 3)
	assert.Equal(t, `{"gemini_chunk": "y"}`, s.Frames[1])
}

func TestParseScriptEmpty(t *testing.T) {
	_, err := ParseScript(strings.NewReader("# nothing\n\n"))
	assert.Error(t, err)
}

func TestRenderEscapesPrompt(t *testing.T) {
	s := Script{Frames: []string{`{"gemini_chunk": "you said {{prompt}}"}`}}
	frames := s.Render(`a "quoted" line` + "\n")

	events, err := stream.DecodeFrame(frames[0])
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "you said a \"quoted\" line\n", events[0].Text)
}

func TestDemoScriptDecodes(t *testing.T) {
	s := DemoScript()
	frames := s.Render("hello")
	require.NotEmpty(t, frames)

	var gemini strings.Builder
	for i, f := range frames {
		events, err := stream.DecodeFrame(f)
		require.NoError(t, err, "frame %d", i)
		for _, ev := range events {
			if ev.Kind == stream.KindChunk && ev.Source == "gemini" {
				gemini.WriteString(ev.Text)
			}
		}
	}
	assert.Contains(t, gemini.String(), "You asked: _hello_")

	last, err := stream.DecodeFrame(frames[len(frames)-1])
	require.NoError(t, err)
	assert.Equal(t, stream.KindEnd, last[0].Kind)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(New(Options{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamGET(t *testing.T) {
	srv := httptest.NewServer(New(Options{Script: testScript(t)}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream?prompt=" + url.QueryEscape("ping"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := collect(t, resp.Body)
	require.Len(t, events, 4)
	assert.Equal(t, stream.Whole("huggingface", "hf says ping"), events[0])
	assert.Equal(t, stream.Chunk("gemini", "Hi"), events[1])
	assert.Equal(t, stream.Chunk("gemini", " there"), events[2])
	assert.Equal(t, stream.End(), events[3])
}

func TestStreamPOSTHistory(t *testing.T) {
	srv := httptest.NewServer(New(Options{Script: testScript(t)}).Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"history": []map[string]string{
			{"role": "user", "content": "first"},
			{"role": "ai", "content": "answer"},
			{"role": "user", "content": "second"},
		},
	})
	resp, err := http.Post(srv.URL+"/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	events := collect(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, "hf says second", events[0].Text)
}

func TestStreamEmptyPrompt(t *testing.T) {
	srv := httptest.NewServer(New(Options{Script: testScript(t)}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream?prompt=")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	msg, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(msg), "Prompt is required")
}
