package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/duochat/internal/aggregator"
	"github.com/dohr-michael/duochat/internal/config"
	"github.com/dohr-michael/duochat/internal/conversation"
	"github.com/dohr-michael/duochat/internal/transport"
)

// Options configures Run.
type Options struct {
	Reloader *config.Reloader
	// Override re-applies command-line overrides to a freshly reloaded config.
	Override func(*config.Config)
}

// Run starts the interactive client and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Reloader.Current()
	tr, err := transport.New(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	var program atomic.Pointer[tea.Program]
	agg := aggregator.New(tr, aggregator.Options{
		Primary:        cfg.Sources.Primary,
		SendHistory:    cfg.Endpoint.SendHistory,
		SecondaryModel: cfg.Endpoint.SecondaryModel,
		Render: func(turns []conversation.TurnSnapshot) {
			if p := program.Load(); p != nil {
				p.Send(HistoryMsg{Turns: turns})
			}
		},
	})

	opts.Reloader.OnReload(func(cfg *config.Config) {
		if opts.Override != nil {
			opts.Override(cfg)
		}
		tr, err := transport.New(cfg.Endpoint)
		if err != nil {
			slog.Error("reload transport", "error", err)
			return
		}
		agg.Reconfigure(tr, cfg.Endpoint.SendHistory, cfg.Endpoint.SecondaryModel)
	})

	p := tea.NewProgram(
		NewModel(ctx, agg, opts.Reloader),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	program.Store(p)

	slog.Info("tui started", "session", agg.Session().ID(), "endpoint", cfg.Endpoint.URL)
	_, runErr := p.Run()

	program.Store(nil)
	agg.Close()
	slog.Info("tui stopped", "session", agg.Session().ID(), "turns", agg.Session().Len())

	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}
