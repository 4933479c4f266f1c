package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/stream"
)

const wsReadLimit = 1 << 20

// WS opens streams over a WebSocket. The client sends one JSON request and
// then reads one frame per text message.
type WS struct {
	url         string
	headers     map[string]string
	dialTimeout time.Duration
}

// NewWS creates a WebSocket transport.
func NewWS(cfg config.EndpointConfig) *WS {
	return &WS{
		url:         cfg.URL,
		headers:     cfg.Headers,
		dialTimeout: dialTimeout(cfg),
	}
}

// Open dials the endpoint and sends the request.
func (t *WS) Open(ctx context.Context, req Request) (stream.Stream, error) {
	header := http.Header{}
	for k, v := range t.headers {
		header.Set(k, v)
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, &stream.TransportError{Op: "open", Err: err}
	}
	conn.SetReadLimit(wsReadLimit)

	if err := wsjson.Write(ctx, conn, newRequestBody(req)); err != nil {
		conn.CloseNow()
		return nil, &stream.TransportError{Op: "open", Err: err}
	}

	return stream.NewFrameStream(&wsFrames{ctx: ctx, conn: conn}, wsCloser{conn: conn}), nil
}

// wsFrames yields frames from text messages. A message is either one raw JSON
// frame or SSE-formatted text holding one or more frames.
type wsFrames struct {
	ctx     context.Context
	conn    *websocket.Conn
	pending [][]byte
}

func (f *wsFrames) Next() ([]byte, error) {
	for len(f.pending) == 0 {
		typ, data, err := f.conn.Read(f.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, io.EOF
			}
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}

		trimmed := bytes.TrimSpace(data)
		if !bytes.HasPrefix(trimmed, []byte("data:")) {
			return trimmed, nil
		}
		dec := stream.NewDecoder(bytes.NewReader(trimmed))
		for {
			frame, err := dec.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			var derr *stream.DecodeError
			if errors.As(err, &derr) {
				slog.Warn("skipping malformed frame", "error", err)
				continue
			}
			if err != nil {
				return nil, err
			}
			f.pending = append(f.pending, frame)
		}
	}

	frame := f.pending[0]
	f.pending = f.pending[1:]
	return frame, nil
}

// wsCloseTimeout bounds the close handshake. A peer that never answers is
// dropped.
const wsCloseTimeout = 500 * time.Millisecond

type wsCloser struct {
	conn *websocket.Conn
}

func (c wsCloser) Close() error {
	done := make(chan error, 1)
	go func() {
		done <- c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(wsCloseTimeout):
		c.conn.CloseNow()
		return errors.New("websocket close handshake timed out")
	}
}
