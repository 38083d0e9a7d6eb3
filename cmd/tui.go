package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/miosa/chatai/app"
	"github.com/miosa/chatai/auth"
	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/conversation"
	"github.com/miosa/chatai/logging"
	"github.com/miosa/chatai/session"
)

// TUICommand opens the interactive chat. It is also the default action.
func TUICommand() *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Open the interactive chat (default)",
		Action: runTUI,
	}
}

func runTUI(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	closer, err := logging.ToFile(e.profileDir, e.cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext(c)
	defer cancel()

	defaultModel, err := client.ParseModel(e.cfg.UI.DefaultModel)
	if err != nil {
		log.Warn().Err(err).Str("model", e.cfg.UI.DefaultModel).Msg("falling back to GPT-4")
		defaultModel = client.ModelGPT
	}

	m := app.New(app.Deps{
		Auth:         auth.New(ctx, e.client, e.store),
		Conv:         conversation.New(e.client, e.store, conversation.WithContext(ctx)),
		Store:        e.store,
		DefaultModel: defaultModel,
		Version:      c.App.Version,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	if err := e.watch(ctx, func(s session.Session) {
		p.Send(session.Changed{Session: s})
	}); err != nil {
		log.Warn().Err(err).Msg("session changes from other processes will not be seen")
	}

	log.Info().Str("gateway", e.cfg.Gateway.BaseURL).Msg("tui started")
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chatai: %w", err)
	}
	return nil
}
