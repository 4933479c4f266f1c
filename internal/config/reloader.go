package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// Reloader re-reads the .env file and config on demand. The new config is
// swapped in atomically and listeners run only when a section changed.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]

	mu        sync.Mutex // serializes Reload and OnReload
	listeners []func(*Config)
}

func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{configPath: configPath, dotenvPath: dotenvPath}
	r.current.Store(initial)
	return r
}

func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers fn to run, in registration order, after a reload that
// changed something. fn may adjust the config before it is used.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload returns the names of the config sections that changed. On error the
// current config is kept. A missing config file reloads to defaults.
func (r *Reloader) Reload() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return nil, fmt.Errorf("reload dotenv: %w", err)
	}
	cfg, err := LoadOrDefault(r.configPath)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}

	changed := ChangedSections(r.current.Load(), cfg)
	if len(changed) == 0 {
		slog.Debug("config unchanged", "path", r.configPath)
		return nil, nil
	}
	for _, fn := range r.listeners {
		fn(cfg)
	}
	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath, "changed", changed)
	return changed, nil
}

// ChangedSections lists the top-level sections, by JSON name, that differ
// between a and b.
func ChangedSections(a, b *Config) []string {
	sections := []struct {
		name string
		a, b any
	}{
		{"endpoint", a.Endpoint, b.Endpoint},
		{"sources", a.Sources, b.Sources},
		{"render", a.Render, b.Render},
		{"log", a.Log, b.Log},
		{"mock", a.Mock, b.Mock},
		{"prompts", a.Prompts, b.Prompts},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
