// Package config loads the duochat client configuration.
package config

import "time"

// Config is the root configuration for duochat.
type Config struct {
	Endpoint EndpointConfig `json:"endpoint"`
	Sources  SourcesConfig  `json:"sources"`
	Render   RenderConfig   `json:"render"`
	Log      LogConfig      `json:"log"`
	Mock     MockConfig     `json:"mock"`
	Prompts  PromptsConfig  `json:"prompts"`
}

// Transport names.
const (
	TransportSSE = "sse"
	TransportWS  = "ws"
)

// EndpointConfig describes the streaming endpoint.
type EndpointConfig struct {
	URL            string            `json:"url"`
	Transport      string            `json:"transport"`                 // "sse" (default) or "ws"
	Method         string            `json:"method"`                    // "GET" (default) or "POST", sse only
	SendHistory    bool              `json:"send_history"`              // include frozen prior turns as context
	SecondaryModel string            `json:"secondary_model,omitempty"` // forwarded as hf_model
	Headers        map[string]string `json:"headers,omitempty"`         // values may use ${{ .Env.VAR }}
	DialTimeout    Duration          `json:"dial_timeout,omitempty"`    // bounds connection setup only
}

// SourcesConfig names the response sources.
type SourcesConfig struct {
	Primary string            `json:"primary"` // receives the error marker
	Labels  map[string]string `json:"labels"`  // display names
}

// Label returns the display name of source, falling back to the source name.
func (s SourcesConfig) Label(source string) string {
	if l, ok := s.Labels[source]; ok && l != "" {
		return l
	}
	return source
}

// RenderConfig controls response rendering.
type RenderConfig struct {
	Markdown *bool `json:"markdown,omitempty"` // default true
	WordWrap int   `json:"word_wrap"`
}

// MarkdownEnabled reports whether responses are rendered as markdown.
func (r RenderConfig) MarkdownEnabled() bool {
	return r.Markdown == nil || *r.Markdown
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
	File  string `json:"file"`  // used when the terminal is owned by the TUI
}

// MockConfig configures the fixture replay server.
type MockConfig struct {
	Addr            string  `json:"addr"`
	Script          string  `json:"script,omitempty"` // JSONL of frames; empty = built-in demo
	FramesPerSecond float64 `json:"frames_per_second"`
}

// PromptsConfig holds canned prompts offered by the interactive client.
type PromptsConfig struct {
	Examples []string `json:"examples"` // an empty list disables them
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
