package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/stream"
)

const maxErrorBody = 512

// HTTP opens Server-Sent Events streams over plain HTTP.
type HTTP struct {
	client  *http.Client
	url     string
	method  string
	headers map[string]string
}

// NewHTTP creates an SSE transport. A nil client gets one whose only timeouts
// cover connection setup; response bodies may stream indefinitely.
func NewHTTP(cfg config.EndpointConfig, client *http.Client) *HTTP {
	if client == nil {
		d := dialTimeout(cfg)
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: d}).DialContext,
				TLSHandshakeTimeout: d,
			},
		}
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	return &HTTP{
		client:  client,
		url:     cfg.URL,
		method:  method,
		headers: cfg.Headers,
	}
}

// Open sends the request and returns the decoded response stream.
func (t *HTTP) Open(ctx context.Context, req Request) (stream.Stream, error) {
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, &stream.TransportError{Op: "open", Err: err}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &stream.TransportError{Op: "open", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &stream.TransportError{Op: "status", Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		slog.Debug("unexpected stream content type", "content_type", ct)
	}

	return stream.NewSSEStream(resp.Body), nil
}

func (t *HTTP) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	var httpReq *http.Request

	switch t.method {
	case http.MethodGet:
		u, err := url.Parse(t.url)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("prompt", req.Prompt)
		if req.SecondaryModel != "" {
			q.Set("hf_model", req.SecondaryModel)
		}
		u.RawQuery = q.Encode()

		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}

	case http.MethodPost:
		data, err := json.Marshal(newRequestBody(req))
		if err != nil {
			return nil, err
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

	default:
		return nil, fmt.Errorf("unsupported method %q", t.method)
	}

	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}
