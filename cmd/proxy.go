package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/miosa/chatai/proxy"
)

// ProxyCommand serves the browser relay in front of the Gateway.
func ProxyCommand() *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Relay browser requests under /api/proxy/ to the Gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Listen `ADDRESS` (default from config)"},
			&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "Upstream `URL` (default from config)"},
		},
		Action: runProxy,
	}
}

func runProxy(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	pc := e.cfg.Proxy
	if v := c.String("listen"); v != "" {
		pc.Listen = v
	}
	if v := c.String("target"); v != "" {
		pc.Target = v
	}

	srv, err := proxy.New(proxy.Options{
		Target:         pc.Target,
		Rate:           pc.Rate,
		Burst:          pc.Burst,
		AllowedOrigins: pc.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	log.Info().Str("listen", pc.Listen).Str("target", pc.Target).Msg("proxy starting")
	return srv.Run(ctx, pc.Listen)
}
