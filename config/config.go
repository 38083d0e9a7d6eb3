// Package config loads chatai settings from defaults, an optional TOML file,
// a .env file and CHATAI_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	tomlparser "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, e.g.
	// CHATAI_GATEWAY_BASE_URL for gateway.base_url.
	EnvPrefix = "CHATAI_"

	DefaultBaseURL = "http://localhost:5000"
	DevBaseURL     = "http://localhost:19001"

	filename = "config.toml"
)

type Gateway struct {
	BaseURL string `koanf:"base_url" toml:"base_url"`
	// Timeout in seconds for one Gateway request; 0 waits indefinitely.
	Timeout int `koanf:"timeout" toml:"timeout"`
}

// RequestTimeout returns Timeout as a duration.
func (g Gateway) RequestTimeout() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

type UI struct {
	// Theme is dark, light or catppuccin. Empty follows the terminal.
	Theme        string `koanf:"theme" toml:"theme"`
	DefaultModel string `koanf:"default_model" toml:"default_model"`
}

type Log struct {
	Level string `koanf:"level" toml:"level"`
}

type Proxy struct {
	Listen         string   `koanf:"listen" toml:"listen"`
	Target         string   `koanf:"target" toml:"target"`
	Rate           float64  `koanf:"rate" toml:"rate"`
	Burst          int      `koanf:"burst" toml:"burst"`
	AllowedOrigins []string `koanf:"allowed_origins" toml:"allowed_origins"`
}

// Config holds every chatai setting.
type Config struct {
	Gateway Gateway `koanf:"gateway" toml:"gateway"`
	UI      UI      `koanf:"ui" toml:"ui"`
	Log     Log     `koanf:"log" toml:"log"`
	Proxy   Proxy   `koanf:"proxy" toml:"proxy"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Gateway: Gateway{BaseURL: DefaultBaseURL},
		UI:      UI{DefaultModel: "gpt"},
		Log:     Log{Level: "info"},
		Proxy: Proxy{
			Listen:         ":8080",
			Target:         DefaultBaseURL,
			Rate:           20,
			Burst:          40,
			AllowedOrigins: []string{"*"},
		},
	}
}

func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"gateway.base_url":      d.Gateway.BaseURL,
		"gateway.timeout":       d.Gateway.Timeout,
		"ui.theme":              d.UI.Theme,
		"ui.default_model":      d.UI.DefaultModel,
		"log.level":             d.Log.Level,
		"proxy.listen":          d.Proxy.Listen,
		"proxy.target":          d.Proxy.Target,
		"proxy.rate":            d.Proxy.Rate,
		"proxy.burst":           d.Proxy.Burst,
		"proxy.allowed_origins": d.Proxy.AllowedOrigins,
	}
}

// Load builds the configuration. path names an explicit TOML file, which
// must exist; when empty, <profileDir>/config.toml is read if present.
func Load(path, profileDir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" && profileDir != "" {
		candidate := filepath.Join(profileDir, filename)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Gateway.BaseURL = strings.TrimRight(cfg.Gateway.BaseURL, "/")
	return &cfg, nil
}

// envKey maps CHATAI_GATEWAY_BASE_URL to gateway.base_url: the first
// underscore separates the section, the rest belong to the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// UseDev points the client at the dev Gateway unless a base URL was set
// explicitly.
func (c *Config) UseDev() {
	if c.Gateway.BaseURL == DefaultBaseURL {
		c.Gateway.BaseURL = DevBaseURL
	}
}

// ProfileDir resolves the directory holding a profile's session and log:
// ~/.chatai, or ~/.chatai/profiles/<name> for a named profile.
func ProfileDir(profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	root := filepath.Join(home, ".chatai")
	if profile == "" {
		return root, nil
	}
	if strings.ContainsAny(profile, `/\`) || profile == "." || profile == ".." {
		return "", fmt.Errorf("invalid profile name %q", profile)
	}
	return filepath.Join(root, "profiles", profile), nil
}

// Init writes the default configuration to path. It refuses to overwrite
// an existing file.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# chatai configuration\n# Every key can be overridden with CHATAI_<SECTION>_<KEY>.\n\n"); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
