package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/duochat/internal/mockserver"
)

// NewMockCommand returns the mock subcommand.
func NewMockCommand() *cli.Command {
	return &cli.Command{
		Name:  "mock",
		Usage: "Serve a fixture script over SSE and WebSocket for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Address to listen on",
			},
			&cli.StringFlag{
				Name:  "script",
				Usage: "JSONL file of frames (default: built-in demo)",
			},
			&cli.FloatFlag{
				Name:  "fps",
				Usage: "Frames per second (0 = unpaced)",
			},
		},
		Action: runMock,
	}
}

func runMock(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	// CLI flags override config
	if cmd.IsSet("addr") {
		cfg.Mock.Addr = cmd.String("addr")
	}
	if cmd.IsSet("script") {
		cfg.Mock.Script = cmd.String("script")
	}
	if cmd.IsSet("fps") {
		cfg.Mock.FramesPerSecond = cmd.Float("fps")
	}

	var script mockserver.Script
	if cfg.Mock.Script != "" {
		script, err = mockserver.LoadScript(cfg.Mock.Script)
		if err != nil {
			return err
		}
	}

	server := mockserver.New(mockserver.Options{
		Script:          script,
		FramesPerSecond: cfg.Mock.FramesPerSecond,
	})

	ln, err := net.Listen("tcp", cfg.Mock.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	fmt.Fprintf(cmd.Root().ErrWriter, "fixture server on http://%s (stream: /stream, websocket: /ws)\n", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
