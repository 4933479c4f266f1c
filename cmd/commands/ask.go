package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/duochat/clients/tui"
	"github.com/dohr-michael/duochat/internal/aggregator"
	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/render"
	"github.com/dohr-michael/duochat/internal/transport"
)

const (
	renderPlain    = "plain"
	renderMarkdown = "markdown"
)

// outputFlags are shared by ask and replay.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "render",
			Usage: "Response rendering: plain (streamed) or markdown (redrawn live on a terminal, printed at the end otherwise). Default: markdown on a terminal",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: text, json or yaml",
			Value:   render.FormatText,
		},
	}
}

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one prompt and print the streamed responses",
		ArgsUsage: "<prompt>",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:  "model",
				Usage: "Secondary comparison model (sent as hf_model)",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Stream transport: sse or ws",
			},
		),
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	tr, err := transport.New(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	prompt := strings.Join(cmd.Args().Slice(), " ")
	return runTurn(ctx, cmd, cfg, tr, prompt)
}

// runTurn submits prompt through tr and writes the turn to the root writer.
// It fails when the turn ends with an error.
func runTurn(ctx context.Context, cmd *cli.Command, cfg *config.Config, tr transport.Transport, prompt string) error {
	out := cmd.Root().Writer
	output := strings.ToLower(cmd.String("output"))
	switch output {
	case render.FormatText, render.FormatJSON, render.FormatYAML:
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	width, tty := terminalWidth(out)
	if width <= 0 || (cfg.Render.WordWrap > 0 && width > cfg.Render.WordWrap) {
		width = cfg.Render.WordWrap
	}

	mode := strings.ToLower(cmd.String("render"))
	switch mode {
	case "":
		mode = renderPlain
		if tty && cfg.Render.MarkdownEnabled() {
			mode = renderMarkdown
		}
	case renderPlain, renderMarkdown:
	default:
		return fmt.Errorf("unknown render mode %q", mode)
	}

	primary := cfg.Sources.Primary
	if primary == "" {
		primary = aggregator.DefaultPrimary
	}
	viewOpts := render.Options{
		Width:    width,
		Primary:  primary,
		Label:    cfg.Sources.Label,
		Markdown: render.NewMarkdown(),
	}

	var (
		renderFn aggregator.RenderFunc
		live     *tui.Live
	)
	switch {
	case output != render.FormatText:
	case mode == renderPlain:
		printer := render.NewPrinter(out, cfg.Sources.Label)
		renderFn = func(turns []conversation.TurnSnapshot) {
			if len(turns) == 0 {
				return
			}
			if err := printer.Update(turns[len(turns)-1]); err != nil {
				slog.Warn("print response", "error", err)
			}
		}
	case tty:
		live = tui.NewLive(out, viewOpts)
		renderFn = live.Render
	}

	agg := aggregator.New(tr, aggregator.Options{
		Primary:        primary,
		SecondaryModel: cfg.Endpoint.SecondaryModel,
		Render:         renderFn,
	})
	defer agg.Close()

	submit := func() (*aggregator.Handle, error) {
		return agg.Submit(ctx, prompt)
	}
	var (
		h   *aggregator.Handle
		err error
	)
	if live != nil {
		h, err = live.Run(ctx, submit)
	} else {
		h, err = submit()
	}
	if errors.Is(err, aggregator.ErrEmptyPrompt) {
		return fmt.Errorf("usage: duochat ask <prompt>: %w", err)
	}
	if err != nil {
		return err
	}
	if h == nil {
		return ctx.Err()
	}

	// Cancelling ctx abandons the stream, so the turn always ends.
	<-h.Done()
	snap, _ := agg.Session().Turn(h.TurnID())

	switch {
	case output != render.FormatText:
		if err := render.Encode(out, output, snap); err != nil {
			return err
		}
	case mode == renderMarkdown:
		view := render.Turn(snap, viewOpts)
		if _, err := io.WriteString(out, view+"\n"); err != nil {
			return err
		}
	}

	if snap.Failed {
		if snap.Error == "" {
			return errors.New("turn failed")
		}
		return fmt.Errorf("turn failed: %s", snap.Error)
	}
	return ctx.Err()
}
