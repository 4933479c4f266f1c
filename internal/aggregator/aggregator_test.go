package aggregator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/stream"
	"github.com/dohr-michael/duochat/internal/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// chanStream delivers events pushed by the test. Closing events ends the
// stream with io.EOF.
type chanStream struct {
	events    chan stream.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{events: make(chan stream.Event), closed: make(chan struct{})}
}

func (s *chanStream) Recv() (stream.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return stream.Event{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return stream.Event{}, stream.ErrClosed
	}
}

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *chanStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// send delivers ev, failing the test if the pump stopped reading.
func (s *chanStream) send(t *testing.T, ev stream.Event) {
	t.Helper()
	select {
	case s.events <- ev:
	case <-time.After(waitFor):
		t.Fatalf("pump did not receive %s", ev)
	}
}

// fakeTransport hands out queued streams in order and records requests.
type fakeTransport struct {
	mu       sync.Mutex
	streams  []stream.Stream
	requests []transport.Request
	err      error
}

func (f *fakeTransport) Open(_ context.Context, req transport.Request) (stream.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.streams) == 0 {
		return nil, errors.New("no stream queued")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) request(i int) transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

// recorder captures rendered histories.
type recorder struct {
	mu     sync.Mutex
	frames [][]conversation.TurnSnapshot
}

func (r *recorder) render(turns []conversation.TurnSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, turns)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) last() []conversation.TurnSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func newTestAggregator(tr transport.Transport, rec *recorder) *Aggregator {
	opts := Options{Primary: "primary"}
	if rec != nil {
		opts.Render = rec.render
	}
	return New(tr, opts)
}

func turn(t *testing.T, a *Aggregator, id string) conversation.TurnSnapshot {
	t.Helper()
	snap, ok := a.Session().Turn(id)
	require.True(t, ok)
	return snap
}

func waitDone(t *testing.T, h *Handle) conversation.TurnSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	snap, err := h.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSubmitHelloScenario(t *testing.T) {
	s := newChanStream()
	tr := &fakeTransport{streams: []stream.Stream{s}}
	rec := &recorder{}
	a := newTestAggregator(tr, rec)
	defer a.Close()

	h, err := a.Submit(context.Background(), "Hello")
	require.NoError(t, err)

	first := rec.last()
	require.Len(t, first, 1)
	assert.Equal(t, "Hello", first[0].Prompt)
	assert.Empty(t, first[0].Responses)
	assert.True(t, first[0].Active())

	s.send(t, stream.Chunk("primary", "Hi"))
	require.Eventually(t, func() bool {
		return turn(t, a, h.TurnID()).Response("primary") == "Hi"
	}, waitFor, tick)

	s.send(t, stream.Chunk("primary", " there"))
	require.Eventually(t, func() bool {
		return turn(t, a, h.TurnID()).Response("primary") == "Hi there"
	}, waitFor, tick)

	s.send(t, stream.End())
	snap := waitDone(t, h)
	assert.False(t, snap.Active())
	assert.False(t, snap.Failed)
	assert.Equal(t, "Hi there", snap.Response("primary"))
	require.Eventually(t, s.isClosed, waitFor, tick, "stream released on end")

	last := rec.last()
	require.Len(t, last, 1)
	assert.Equal(t, conversation.TurnFrozen, last[0].State)
	assert.Equal(t, "Hi there", last[0].Response("primary"))

	assert.ErrorIs(t, a.OnEvent(stream.Chunk("primary", "!")), conversation.ErrFrozen)
	assert.Equal(t, "Hi there", turn(t, a, h.TurnID()).Response("primary"))
}

func TestSubmitEmptyPrompt(t *testing.T) {
	tr := &fakeTransport{}
	rec := &recorder{}
	a := newTestAggregator(tr, rec)
	defer a.Close()

	for _, prompt := range []string{"", "   ", "\n\t"} {
		h, err := a.Submit(context.Background(), prompt)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Nil(t, h)
	}
	assert.Zero(t, a.Session().Len())
	assert.Zero(t, tr.calls())
	assert.Zero(t, rec.count())
}

func TestErrorEventScenario(t *testing.T) {
	s := newChanStream()
	tr := &fakeTransport{streams: []stream.Stream{s}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "Test")
	require.NoError(t, err)

	s.send(t, stream.Chunk("secondary", "partial"))
	s.send(t, stream.Fail("rate limited"))
	snap := waitDone(t, h)

	assert.True(t, snap.Failed)
	assert.Equal(t, "rate limited", snap.Error)
	assert.Equal(t, "Error: rate limited", snap.Response("primary"))
	assert.Contains(t, snap.Response("primary"), "rate limited")
	assert.Equal(t, "partial", snap.Response("secondary"))
	require.Eventually(t, s.isClosed, waitFor, tick)

	assert.ErrorIs(t, a.OnEvent(stream.Chunk("primary", "late")), conversation.ErrFrozen)
	assert.Equal(t, "Error: rate limited", turn(t, a, h.TurnID()).Response("primary"))
}

func TestErrorReplacesPrimaryContent(t *testing.T) {
	s := newChanStream()
	a := newTestAggregator(&fakeTransport{streams: []stream.Stream{s}}, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)
	s.send(t, stream.Chunk("primary", "half an ans"))
	s.send(t, stream.Fail("boom"))

	snap := waitDone(t, h)
	assert.Equal(t, "Error: boom", snap.Response("primary"))
}

func TestOpenFailureBecomesErrorMarker(t *testing.T) {
	tr := &fakeTransport{err: &stream.TransportError{Op: "status", Status: 429, Err: errors.New("rate limited")}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "Test")
	require.NoError(t, err)

	snap := waitDone(t, h)
	assert.Equal(t, ErrorMarker("rate limited"), snap.Response("primary"))
	assert.False(t, a.Streaming())
}

func TestReadFailureBecomesErrorMarker(t *testing.T) {
	r, w := io.Pipe()
	tr := &fakeTransport{streams: []stream.Stream{stream.NewSSEStream(r)}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	_, err = io.WriteString(w, "data: {\"primary_chunk\": \"abc\"}\n\n")
	require.NoError(t, err)
	w.CloseWithError(errors.New("connection reset"))

	snap := waitDone(t, h)
	assert.True(t, snap.Failed)
	assert.Contains(t, snap.Response("primary"), "connection reset")
}

func TestEOFWithoutEndFreezes(t *testing.T) {
	body := "data: {\"primary_chunk\": \"a\"}\n\ndata: {\"primary_chunk\": \"b\"}\n\n"
	tr := &fakeTransport{streams: []stream.Stream{stream.NewSSEStream(io.NopCloser(strings.NewReader(body)))}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	snap := waitDone(t, h)
	assert.Equal(t, conversation.TurnFrozen, snap.State)
	assert.False(t, snap.Failed)
	assert.Equal(t, "ab", snap.Response("primary"))
}

func TestWholeValueAndChunks(t *testing.T) {
	body := strings.Join([]string{
		`data: {"huggingface": "whole answer"}`,
		`data: {"primary_chunk": "one"}`,
		`data: {"huggingface": "ignored second whole"}`,
		`data: {"huggingface_chunk": "ignored chunk"}`,
		`data: {"primary_chunk": " two"}`,
		`data: {"event": "end"}`,
	}, "\n\n") + "\n\n"
	tr := &fakeTransport{streams: []stream.Stream{stream.NewSSEStream(io.NopCloser(strings.NewReader(body)))}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	snap := waitDone(t, h)
	assert.Equal(t, []string{"huggingface", "primary"}, snap.Sources)
	assert.Equal(t, "whole answer", snap.Response("huggingface"))
	assert.Equal(t, "one two", snap.Response("primary"))
}

func TestChunksConcatenateInOrder(t *testing.T) {
	chunks := []string{"The", " quick", " brown", "", " fox", " 🦊", "\n\n**done**"}
	var body strings.Builder
	for _, c := range chunks {
		data, err := stream.EncodeFrame(stream.Chunk("primary", c))
		require.NoError(t, err)
		body.WriteString("data: " + string(data) + "\n\n")
	}
	body.WriteString("data: {\"event\": \"end\"}\n\n")

	tr := &fakeTransport{streams: []stream.Stream{stream.NewSSEStream(io.NopCloser(strings.NewReader(body.String())))}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	snap := waitDone(t, h)
	assert.Equal(t, strings.Join(chunks, ""), snap.Response("primary"))
}

func TestNewSubmitAbandonsPreviousStream(t *testing.T) {
	first, second := newChanStream(), newChanStream()
	tr := &fakeTransport{streams: []stream.Stream{first, second}}
	a := newTestAggregator(tr, nil)
	defer a.Close()

	h1, err := a.Submit(context.Background(), "one")
	require.NoError(t, err)
	first.send(t, stream.Chunk("primary", "partial"))
	require.Eventually(t, func() bool {
		return turn(t, a, h1.TurnID()).Response("primary") == "partial"
	}, waitFor, tick)

	h2, err := a.Submit(context.Background(), "two")
	require.NoError(t, err)

	assert.True(t, first.isClosed(), "previous stream closed")
	old := waitDone(t, h1)
	assert.Equal(t, conversation.TurnFrozen, old.State)
	assert.False(t, old.Failed)
	assert.Equal(t, "partial", old.Response("primary"))

	// An event already in flight from the old pump is discarded.
	more, err := a.apply(h1, stream.Chunk("primary", " stale"))
	assert.False(t, more)
	assert.ErrorIs(t, err, conversation.ErrFrozen)
	assert.Equal(t, "partial", turn(t, a, h1.TurnID()).Response("primary"))
	assert.Empty(t, turn(t, a, h2.TurnID()).Responses)

	second.send(t, stream.Chunk("primary", "fresh"))
	second.send(t, stream.End())
	snap := waitDone(t, h2)
	assert.Equal(t, "fresh", snap.Response("primary"))

	turns := a.Session().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "one", turns[0].Prompt)
	assert.Equal(t, "two", turns[1].Prompt)
}

func TestSendHistory(t *testing.T) {
	body := "data: {\"primary_chunk\": \"answer one\"}\n\ndata: {\"event\": \"end\"}\n\n"
	tr := &fakeTransport{streams: []stream.Stream{
		stream.NewSSEStream(io.NopCloser(strings.NewReader(body))),
		stream.NewSSEStream(io.NopCloser(strings.NewReader(body))),
	}}
	a := New(tr, Options{Primary: "primary", SendHistory: true, SecondaryModel: "gpt2"})
	defer a.Close()

	h, err := a.Submit(context.Background(), "one")
	require.NoError(t, err)
	waitDone(t, h)

	h, err = a.Submit(context.Background(), "two")
	require.NoError(t, err)
	waitDone(t, h)

	assert.Empty(t, tr.request(0).History)
	assert.Equal(t, "gpt2", tr.request(0).SecondaryModel)
	assert.Equal(t, []conversation.Message{
		{Role: conversation.RoleUser, Content: "one"},
		{Role: conversation.RoleAI, Content: "answer one"},
	}, tr.request(1).History)
	assert.Equal(t, "two", tr.request(1).Prompt)
}

func TestAbandon(t *testing.T) {
	s := newChanStream()
	rec := &recorder{}
	a := newTestAggregator(&fakeTransport{streams: []stream.Stream{s}}, rec)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)
	s.send(t, stream.Chunk("primary", "so far"))
	require.Eventually(t, func() bool {
		return turn(t, a, h.TurnID()).Response("primary") == "so far"
	}, waitFor, tick)

	a.Abandon()
	assert.True(t, s.isClosed())
	assert.False(t, a.Streaming())

	snap := waitDone(t, h)
	assert.Equal(t, conversation.TurnFrozen, snap.State)
	assert.False(t, snap.Failed)
	assert.Equal(t, "so far", snap.Response("primary"))
	assert.Equal(t, conversation.TurnFrozen, rec.last()[0].State)

	a.Abandon() // no-op
}

func TestContextCancelAbandons(t *testing.T) {
	s := newChanStream()
	a := newTestAggregator(&fakeTransport{streams: []stream.Stream{s}}, nil)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := a.Submit(ctx, "q")
	require.NoError(t, err)
	s.send(t, stream.Chunk("primary", "x"))

	cancel()
	s.Close()

	snap := waitDone(t, h)
	assert.False(t, snap.Failed)
	assert.Equal(t, "x", snap.Response("primary"))
}

func TestClose(t *testing.T) {
	s := newChanStream()
	a := newTestAggregator(&fakeTransport{streams: []stream.Stream{s}}, nil)

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, s.isClosed())
	select {
	case <-h.Done():
	default:
		t.Fatal("pump still running after Close")
	}

	_, err = a.Submit(context.Background(), "again")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRenderSeesMonotonicGrowth(t *testing.T) {
	const n = 50
	var body strings.Builder
	for range n {
		body.WriteString("data: {\"primary_chunk\": \"x\"}\n\n")
	}
	body.WriteString("data: {\"event\": \"end\"}\n\n")

	var last atomic.Int64
	var shrunk atomic.Bool
	render := func(turns []conversation.TurnSnapshot) {
		if len(turns) == 0 {
			return
		}
		cur := int64(len(turns[0].Response("primary")))
		if cur < last.Load() {
			shrunk.Store(true)
		}
		last.Store(cur)
	}

	tr := &fakeTransport{streams: []stream.Stream{stream.NewSSEStream(io.NopCloser(strings.NewReader(body.String())))}}
	a := New(tr, Options{Primary: "primary", Render: render})
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)
	waitDone(t, h)

	assert.False(t, shrunk.Load())
	assert.EqualValues(t, n, last.Load())
}

func TestDefaultPrimary(t *testing.T) {
	a := New(&fakeTransport{}, Options{})
	assert.Equal(t, DefaultPrimary, a.Primary())
	assert.NotNil(t, a.Session())
}

// stallingStream blocks Close until unblock is closed, like a WebSocket peer
// that never answers the close handshake.
type stallingStream struct {
	*chanStream
	unblock chan struct{}
	closing chan struct{}
	once    sync.Once
}

func (s *stallingStream) Close() error {
	s.once.Do(func() { close(s.closing) })
	<-s.unblock
	return s.chanStream.Close()
}

func TestStalledCloseDoesNotBlockAggregator(t *testing.T) {
	first := &stallingStream{chanStream: newChanStream(), unblock: make(chan struct{}), closing: make(chan struct{})}
	second := newChanStream()
	tr := &fakeTransport{streams: []stream.Stream{first, second}}
	a := newTestAggregator(tr, nil)

	h, err := a.Submit(context.Background(), "one")
	require.NoError(t, err)
	first.send(t, stream.Chunk("primary", "done"))
	first.send(t, stream.End())

	select {
	case <-first.closing:
	case <-time.After(waitFor):
		t.Fatal("stream not closed after end")
	}

	// The pump is stuck in Close; the aggregator must stay usable.
	snap := waitDone(t, h)
	assert.Equal(t, "done", snap.Response("primary"))

	start := time.Now()
	assert.False(t, a.Streaming())
	h2, err := a.Submit(context.Background(), "two")
	require.NoError(t, err)
	second.send(t, stream.Chunk("primary", "next"))
	require.Eventually(t, func() bool {
		return turn(t, a, h2.TurnID()).Response("primary") == "next"
	}, waitFor, tick)
	assert.Less(t, time.Since(start), time.Second)

	close(first.unblock)
	require.NoError(t, a.Close())
}

func TestOnEventReportsRejectedEvent(t *testing.T) {
	s := newChanStream()
	a := newTestAggregator(&fakeTransport{streams: []stream.Stream{s}}, nil)
	defer a.Close()

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)

	require.NoError(t, a.OnEvent(stream.Whole("secondary", "whole")))
	assert.ErrorIs(t, a.OnEvent(stream.Chunk("secondary", "more")), conversation.ErrSourceComplete)
	require.NoError(t, a.OnEvent(stream.Chunk("primary", "streamed")))
	assert.ErrorIs(t, a.OnEvent(stream.Whole("primary", "again")), conversation.ErrSourceNotEmpty)
	assert.Equal(t, "whole", turn(t, a, h.TurnID()).Response("secondary"))
	assert.Equal(t, "streamed", turn(t, a, h.TurnID()).Response("primary"))
	assert.True(t, a.Streaming())
}

func TestSilentWebSocketPeerDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		var req map[string]any
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		conn.Write(r.Context(), websocket.MessageText, []byte(`{"gemini_chunk": "hi"}`))
		conn.Write(r.Context(), websocket.MessageText, []byte(`{"event": "end"}`))
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := transport.NewWS(config.EndpointConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	a := New(tr, Options{})

	h, err := a.Submit(context.Background(), "q")
	require.NoError(t, err)
	snap := waitDone(t, h)
	assert.Equal(t, "hi", snap.Response(DefaultPrimary))

	start := time.Now()
	assert.False(t, a.Streaming())
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, a.Close())
	assert.Less(t, time.Since(start), 2*time.Second)
}
