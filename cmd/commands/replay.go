package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/transport"
)

// NewReplayCommand returns the replay subcommand.
func NewReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Run a recorded SSE capture through the decoder offline",
		ArgsUsage: "<capture.sse | name>",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "Prompt shown for the replayed turn (default: the capture file name)",
			},
		),
		Action: runReplay,
	}
}

func runReplay(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().First() == "" {
		return fmt.Errorf("usage: duochat replay <capture.sse | name>")
	}
	path := config.ResolveCapture(cmd.Args().First())

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	prompt := cmd.String("prompt")
	if prompt == "" {
		prompt = filepath.Base(path)
	}
	return runTurn(ctx, cmd, cfg, transport.File{Path: path}, prompt)
}
