package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/mockserver"
	"github.com/dohr-michael/duochat/internal/stream"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSAgainstFixtureServer(t *testing.T) {
	script, err := mockserver.ScriptFromEvents(
		stream.Whole("huggingface", "echo {{prompt}}"),
		stream.Chunk("gemini", "Hi"),
		stream.Chunk("gemini", " there"),
		stream.End(),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(mockserver.New(mockserver.Options{Script: script}).Handler())
	defer srv.Close()

	tr := NewWS(config.EndpointConfig{URL: wsURL(srv.URL) + "/ws", Transport: config.TransportWS})
	s, err := tr.Open(context.Background(), Request{Prompt: "ping"})
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.Whole("huggingface", "echo ping"),
		stream.Chunk("gemini", "Hi"),
		stream.Chunk("gemini", " there"),
		stream.End(),
	}, drain(t, s))
}

func TestWSSSEFormattedMessages(t *testing.T) {
	reqs := make(chan requestBody, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var got requestBody
		assert.NoError(t, wsjson.Read(ctx, conn, &got))
		reqs <- got
		conn.Write(ctx, websocket.MessageText, []byte("data: {\"gemini_chunk\": \"a\"}\n\ndata: {\"gemini_chunk\": \"b\"}\n\n"))
		conn.Write(ctx, websocket.MessageBinary, []byte("ignored"))
		conn.Write(ctx, websocket.MessageText, []byte(`{"gemini_chunk": "c"}`))
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	tr := NewWS(config.EndpointConfig{URL: srv.URL, SecondaryModel: "gpt2"})
	s, err := tr.Open(context.Background(), Request{Prompt: "q", SecondaryModel: "gpt2"})
	require.NoError(t, err)

	// The server closes without an end frame; the stream just ends.
	assert.Equal(t, []stream.Event{
		stream.Chunk("gemini", "a"),
		stream.Chunk("gemini", "b"),
		stream.Chunk("gemini", "c"),
	}, drain(t, s))
	got := <-reqs
	assert.Equal(t, "q", got.Prompt)
	assert.Equal(t, "gpt2", got.Model)
}

func TestWSDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := NewWS(config.EndpointConfig{URL: wsURL(srv.URL) + "/ws"})
	_, err := tr.Open(context.Background(), Request{Prompt: "x"})

	var terr *stream.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "open", terr.Op)
}

func TestWSCloseDoesNotWaitForSilentPeer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.CloseNow()

		var req requestBody
		assert.NoError(t, wsjson.Read(r.Context(), conn, &req))
		conn.Write(r.Context(), websocket.MessageText, []byte(`{"event": "end"}`))
		// Never read again, so the close frame is never answered.
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := NewWS(config.EndpointConfig{URL: wsURL(srv.URL)})
	s, err := tr.Open(context.Background(), Request{Prompt: "q"})
	require.NoError(t, err)

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, stream.End(), ev)

	start := time.Now()
	s.Close()
	assert.Less(t, time.Since(start), 2*time.Second)
}
