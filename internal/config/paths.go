package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Layout of the duochat home:
//
//	config.jsonc  client configuration
//	.env          variables for ${{ .Env.VAR }} templates
//	duochat.log   log file while the TUI owns the terminal
//	captures/     recorded SSE streams for `duochat replay`
const (
	configFile  = "config.jsonc"
	dotenvFile  = ".env"
	logFile     = "duochat.log"
	capturesDir = "captures"
	captureExt  = ".sse"
)

// DuochatPath returns the duochat home: $DUOCHAT_PATH, then
// $XDG_CONFIG_HOME/duochat, then ~/.duochat.
func DuochatPath() string {
	if v := os.Getenv("DUOCHAT_PATH"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "duochat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".duochat"
	}
	return filepath.Join(home, ".duochat")
}

func ConfigPath() string { return filepath.Join(DuochatPath(), configFile) }

func DotenvPath() string { return filepath.Join(DuochatPath(), dotenvFile) }

// LogPath is the default log.file.
func LogPath() string { return filepath.Join(DuochatPath(), logFile) }

// CapturesPath is where replay looks up captures given by name.
func CapturesPath() string { return filepath.Join(DuochatPath(), capturesDir) }

// ResolveCapture maps a replay argument to a file. An existing path is used
// as given; otherwise a bare name is looked up in CapturesPath, with the
// .sse extension added when missing.
func ResolveCapture(arg string) string {
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	if strings.ContainsRune(arg, filepath.Separator) {
		return arg
	}
	if filepath.Ext(arg) == "" {
		arg += captureExt
	}
	return filepath.Join(CapturesPath(), arg)
}
