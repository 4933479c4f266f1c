package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/duochat/clients/tui"
	"github.com/dohr-michael/duochat/internal/config"
)

// NewTUICommand returns the tui subcommand.
func NewTUICommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Launch the interactive client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "model",
				Usage: "Secondary comparison model (sent as hf_model)",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Stream transport: sse or ws",
			},
		},
		Action: runTUI,
	}
}

func runTUI(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cmd, cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	return tui.Run(ctx, tui.Options{
		Reloader: reloader,
		Override: func(c *config.Config) { applyOverrides(cmd, c) },
	})
}
