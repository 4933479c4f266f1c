package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dohr-michael/duochat/cmd/commands"
	"github.com/dohr-michael/duochat/internal/config"
)

func main() {
	os.Exit(run(os.Args))
}

// run returns the process exit code: 130 when interrupted, 1 on failure.
func run(args []string) int {
	dotenv := config.DotenvPath()
	if err := config.LoadDotenv(dotenv); err != nil {
		slog.Warn("failed to load .env", "path", dotenv, "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.NewRootCommand().Run(ctx, args); err != nil {
		if ctx.Err() != nil {
			return 130
		}
		slog.Error("duochat failed", "error", err)
		return 1
	}
	return 0
}
