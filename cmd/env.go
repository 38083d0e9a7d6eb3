package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/config"
	"github.com/miosa/chatai/logging"
	"github.com/miosa/chatai/markdown"
	"github.com/miosa/chatai/session"
	"github.com/miosa/chatai/style"
)

// env is what every command needs: settings, the profile's session store
// and a Gateway client bound to it.
type env struct {
	cfg        *config.Config
	profileDir string
	store      session.Store
	client     *client.Client
}

// loadEnv resolves the global flags. Logging goes to stderr; the TUI
// re-routes it to a file once the screen is taken.
func loadEnv(c *cli.Context) (*env, error) {
	profile := c.String("profile")
	if c.Bool("dev") && profile == "" {
		profile = "dev"
	}
	dir, err := config.ProfileDir(profile)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(c.String("config"), dir)
	if err != nil {
		return nil, err
	}
	if c.Bool("dev") {
		cfg.UseDev()
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := logging.Console(os.Stderr, cfg.Log.Level); err != nil {
		return nil, err
	}

	if c.Bool("no-color") || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		markdown.SetPlain(true)
	}
	if err := style.SetTheme(cfg.UI.Theme); err != nil {
		log.Warn().Err(err).Str("theme", cfg.UI.Theme).Msg("unknown theme, using default")
	}

	var store session.Store = session.NewMemoryStore("", "")
	if !c.Bool("ephemeral") {
		fs, err := session.OpenFileStore(dir)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	log.Debug().
		Str("profile_dir", dir).
		Bool("ephemeral", c.Bool("ephemeral")).
		Str("gateway", cfg.Gateway.BaseURL).
		Msg("environment loaded")

	return &env{
		cfg:        cfg,
		profileDir: dir,
		store:      store,
		client:     client.New(cfg.Gateway.BaseURL, store, cfg.Gateway.RequestTimeout()),
	}, nil
}

// requireSession fails fast for commands that need a login.
func (e *env) requireSession() error {
	if e.store.AccessToken() == "" && e.store.RefreshToken() == "" {
		return fmt.Errorf("%s (run `chatai login`)", client.ErrorMessage(client.ErrNoSession))
	}
	return nil
}

// watch reports session changes made by other processes. Ephemeral
// sessions have nothing to watch.
func (e *env) watch(ctx context.Context, fn func(session.Session)) error {
	fs, ok := e.store.(*session.FileStore)
	if !ok {
		return nil
	}
	return fs.Watch(ctx, fn)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
