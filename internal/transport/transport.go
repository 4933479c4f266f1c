// Package transport opens response streams against a chat endpoint.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/stream"
)

// Request is what a transport sends to open a stream.
type Request struct {
	Prompt         string
	History        []conversation.Message // prior frozen turns; empty unless history is enabled
	SecondaryModel string
}

// Transport opens one stream per request. The returned stream is owned by the
// caller, which must Close it. Cancelling ctx aborts the stream.
type Transport interface {
	Open(ctx context.Context, req Request) (stream.Stream, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) (stream.Stream, error)

func (f Func) Open(ctx context.Context, req Request) (stream.Stream, error) {
	return f(ctx, req)
}

// requestBody is the JSON shape of a POST body or WebSocket request.
// History ends with the current prompt as a user message, which is what
// history-only backends read.
type requestBody struct {
	Prompt  string                 `json:"prompt"`
	History []conversation.Message `json:"history,omitempty"`
	Model   string                 `json:"hf_model,omitempty"`
}

func newRequestBody(req Request) requestBody {
	body := requestBody{Prompt: req.Prompt, Model: req.SecondaryModel}
	if len(req.History) > 0 {
		body.History = append(append([]conversation.Message(nil), req.History...),
			conversation.Message{Role: conversation.RoleUser, Content: req.Prompt})
	}
	return body
}

// New builds the transport described by cfg.
func New(cfg config.EndpointConfig) (Transport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("endpoint url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint url %q: missing host", cfg.URL)
	}

	switch cfg.Transport {
	case config.TransportSSE, "":
		switch u.Scheme {
		case "http", "https":
		default:
			return nil, fmt.Errorf("endpoint url %q: sse transport needs http or https", cfg.URL)
		}
		return NewHTTP(cfg, nil), nil
	case config.TransportWS:
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return nil, fmt.Errorf("endpoint url %q: ws transport needs ws, wss, http or https", cfg.URL)
		}
		return NewWS(cfg), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// File replays a recorded SSE capture. The request is ignored.
type File struct {
	Path string
}

func (f File) Open(_ context.Context, _ Request) (stream.Stream, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, &stream.TransportError{Op: "open", Err: err}
	}
	return stream.NewSSEStream(fh), nil
}

func dialTimeout(cfg config.EndpointConfig) time.Duration {
	if d := cfg.DialTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}
