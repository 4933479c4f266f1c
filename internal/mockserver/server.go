package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/dohr-michael/duochat/internal/conversation"
)

// Options configures a Server.
type Options struct {
	Script          Script
	FramesPerSecond float64 // <= 0 sends frames as fast as possible
}

// Server replays a script to every request.
type Server struct {
	httpServer *http.Server
	script     Script
	fps        float64
}

// request mirrors the body sent by the client transports.
type request struct {
	Prompt  string                 `json:"prompt"`
	History []conversation.Message `json:"history"`
	Model   string                 `json:"hf_model"`
}

// promptText returns the prompt, falling back to the last user message of a
// history-only body.
func (r request) promptText() string {
	if strings.TrimSpace(r.Prompt) != "" {
		return r.Prompt
	}
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == conversation.RoleUser {
			return r.History[i].Content
		}
	}
	return ""
}

// New creates a fixture server.
func New(opts Options) *Server {
	s := &Server{
		script: opts.Script,
		fps:    opts.FramesPerSecond,
	}
	if len(s.script.Frames) == 0 {
		s.script = DemoScript()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/stream", s.handleStream)
	r.Post("/stream", s.handleStream)
	r.Get("/ws", s.handleWS)

	s.httpServer = &http.Server{Handler: r}
	return s
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("fixture server listening", "addr", ln.Addr().String(), "frames", len(s.script.Frames))
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) limiter() *rate.Limiter {
	if s.fps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(s.fps), 1)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req request
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.Prompt = r.URL.Query().Get("prompt")
		req.Model = r.URL.Query().Get("hf_model")
	}

	prompt := req.promptText()
	if strings.TrimSpace(prompt) == "" {
		http.Error(w, "Prompt is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	ctx := r.Context()
	lim := s.limiter()

	slog.Debug("replaying script", "transport", "sse", "prompt", prompt, "model", req.Model)
	for _, frame := range s.script.Render(prompt) {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			slog.Debug("flush", "error", err)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // any origin, development only
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var req request
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}
	prompt := req.promptText()
	if strings.TrimSpace(prompt) == "" {
		conn.Close(websocket.StatusPolicyViolation, "Prompt is required")
		return
	}

	lim := s.limiter()
	slog.Debug("replaying script", "transport", "ws", "prompt", prompt, "model", req.Model)
	for _, frame := range s.script.Render(prompt) {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
