package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/desertthunder/pricewatch/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive price dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	if err := r.start(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, ui.Deps{
		API:      r.api,
		Session:  r.session,
		Exporter: r.exporter,
		Login: func(ctx context.Context) error {
			_, err := r.oauthFlow(io.Discard, "").Run(ctx)
			return err
		},
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	r.session.SetHooks(ui.Hooks(p.Send))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
