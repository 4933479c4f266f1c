package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/duochat/internal/config"
)

// loadConfig reads the config named by --config and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg)
	return cfg, nil
}

// applyOverrides copies explicitly set flags over cfg. Flags a command does
// not define are never set.
func applyOverrides(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("endpoint") {
		cfg.Endpoint.URL = cmd.String("endpoint")
	}
	if cmd.IsSet("transport") {
		cfg.Endpoint.Transport = strings.ToLower(cmd.String("transport"))
	}
	if cmd.IsSet("model") {
		cfg.Endpoint.SecondaryModel = cmd.String("model")
	}
}

// setupLogging installs the default slog handler. With toFile, logs go to
// cfg.Log.File so they do not corrupt a full-screen UI. The returned func
// closes the log file.
func setupLogging(cmd *cli.Command, cfg *config.Config, toFile bool) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if toFile && cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

// terminalWidth reports the width of w and whether it is a terminal.
var terminalWidth = fileTerminalWidth

func fileTerminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, true
	}
	return width, true
}
