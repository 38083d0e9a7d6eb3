package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/miosa/chatai/config"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Write a configuration file with the defaults",
				ArgsUsage: "[PATH]",
				Action:    runConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		profile := c.String("profile")
		if c.Bool("dev") && profile == "" {
			profile = "dev"
		}
		dir, err := config.ProfileDir(profile)
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.toml")
	}
	if err := config.Init(path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", path)
	return nil
}

func runConfigShow(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	cfg := e.cfg
	w := c.App.Writer
	fmt.Fprintf(w, "profile_dir           = %s\n", e.profileDir)
	fmt.Fprintf(w, "gateway.base_url      = %s\n", cfg.Gateway.BaseURL)
	fmt.Fprintf(w, "gateway.timeout       = %d\n", cfg.Gateway.Timeout)
	fmt.Fprintf(w, "ui.theme              = %s\n", cfg.UI.Theme)
	fmt.Fprintf(w, "ui.default_model      = %s\n", cfg.UI.DefaultModel)
	fmt.Fprintf(w, "log.level             = %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "proxy.listen          = %s\n", cfg.Proxy.Listen)
	fmt.Fprintf(w, "proxy.target          = %s\n", cfg.Proxy.Target)
	fmt.Fprintf(w, "proxy.rate            = %g\n", cfg.Proxy.Rate)
	fmt.Fprintf(w, "proxy.burst           = %d\n", cfg.Proxy.Burst)
	fmt.Fprintf(w, "proxy.allowed_origins = %v\n", cfg.Proxy.AllowedOrigins)
	return nil
}
