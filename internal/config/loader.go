package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSONC config bytes.
func Parse(data []byte) (*Config, error) {
	// Expand before standardizing, since templates live in strings.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not
// exist. Any other error is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Endpoint.URL == "" {
		cfg.Endpoint.URL = "http://127.0.0.1:5000/stream"
	}
	if cfg.Endpoint.Transport == "" {
		cfg.Endpoint.Transport = TransportSSE
	}
	cfg.Endpoint.Transport = strings.ToLower(cfg.Endpoint.Transport)
	if cfg.Endpoint.Method == "" {
		cfg.Endpoint.Method = "GET"
	}
	cfg.Endpoint.Method = strings.ToUpper(cfg.Endpoint.Method)
	if cfg.Endpoint.DialTimeout == 0 {
		cfg.Endpoint.DialTimeout = Duration(10 * time.Second)
	}

	if cfg.Sources.Primary == "" {
		cfg.Sources.Primary = "gemini"
	}
	if cfg.Sources.Labels == nil {
		cfg.Sources.Labels = map[string]string{}
	}
	for src, label := range map[string]string{"gemini": "Gemini AI", "huggingface": "Hugging Face"} {
		if _, ok := cfg.Sources.Labels[src]; !ok {
			cfg.Sources.Labels[src] = label
		}
	}

	if cfg.Render.WordWrap == 0 {
		cfg.Render.WordWrap = 80
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = LogPath()
	}

	if cfg.Prompts.Examples == nil {
		cfg.Prompts.Examples = []string{
			"Explain the difference between TCP and UDP.",
			"Write a haiku about streaming responses.",
			"Summarize the plot of Hamlet in three sentences.",
		}
	}

	if cfg.Mock.Addr == "" {
		cfg.Mock.Addr = "127.0.0.1:5000"
	}
	if cfg.Mock.FramesPerSecond == 0 {
		cfg.Mock.FramesPerSecond = 20
	}
}

func validate(cfg *Config) error {
	switch cfg.Endpoint.Transport {
	case TransportSSE, TransportWS:
	default:
		return fmt.Errorf("endpoint.transport: unknown transport %q", cfg.Endpoint.Transport)
	}
	switch cfg.Endpoint.Method {
	case "GET", "POST":
	default:
		return fmt.Errorf("endpoint.method: unsupported method %q", cfg.Endpoint.Method)
	}
	if cfg.Mock.FramesPerSecond < 0 {
		return fmt.Errorf("mock.frames_per_second: must not be negative")
	}
	return nil
}
