package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/duochat/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "duochat",
		Usage: "Stream and compare answers from a dual-provider chat endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Usage:   "Streaming endpoint URL (overrides config)",
			},
		},
		Commands: []*cli.Command{
			NewAskCommand(),
			NewTUICommand(),
			NewReplayCommand(),
			NewMockCommand(),
		},
	}
}
