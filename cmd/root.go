// Package cmd wires the chatai command line: the TUI, one-shot account and
// chat commands for scripts, the browser relay and config management.
package cmd

import (
	"github.com/urfave/cli/v2"
)

// App returns the chatai command tree. Running it without a command opens
// the TUI.
func App(version string) *cli.App {
	return &cli.App{
		Name:    "chatai",
		Usage:   "Chat with GPT-4, Claude and Gemini through the CHAT A.I+ Gateway",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"CHATAI_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Named profile for state isolation (~/.chatai/profiles/`NAME`)",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "Dev mode (alias for --profile dev, Gateway on port 19001)",
			},
			&cli.BoolFlag{
				Name:  "ephemeral",
				Usage: "Keep the session in memory only; nothing is written to the profile",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable ANSI colors",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log `LEVEL` (trace, debug, info, warn, error)",
			},
		},
		Action: runTUI,
		Commands: []*cli.Command{
			TUICommand(),
			LoginCommand(),
			SignupCommand(),
			LogoutCommand(),
			RefreshCommand(),
			WhoamiCommand(),
			ConversationsCommand(),
			HistoryCommand(),
			SendCommand(),
			ProxyCommand(),
			ConfigCommand(),
		},
	}
}
