package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
	assert.Zero(t, cfg.Gateway.RequestTimeout())
}

func TestLoad_ProfileFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[gateway]
base_url = "https://gateway.example.com/"
timeout = 30

[ui]
theme = "light"
default_model = "claude"
`), 0o644))
	t.Setenv("CHATAI_UI_DEFAULT_MODEL", "gemini")
	t.Setenv("CHATAI_PROXY_BURST", "5")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.RequestTimeout())
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, "gemini", cfg.UI.DefaultModel)
	assert.Equal(t, 5, cfg.Proxy.Burst)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), "")
	assert.Error(t, err)
}

func TestUseDev(t *testing.T) {
	cfg := Default()
	cfg.UseDev()
	assert.Equal(t, DevBaseURL, cfg.Gateway.BaseURL)

	cfg.Gateway.BaseURL = "https://prod.example.com"
	cfg.UseDev()
	assert.Equal(t, "https://prod.example.com", cfg.Gateway.BaseURL)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "gateway.base_url", envKey("CHATAI_GATEWAY_BASE_URL"))
	assert.Equal(t, "proxy.allowed_origins", envKey("CHATAI_PROXY_ALLOWED_ORIGINS"))
	assert.Equal(t, "log.level", envKey("CHATAI_LOG_LEVEL"))
}

func TestProfileDir(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	root, err := ProfileDir("")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.chatai", root)

	dev, err := ProfileDir("dev")
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.chatai/profiles/dev", dev)

	_, err = ProfileDir("../etc")
	assert.Error(t, err)
}

func TestInit_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, Init(path))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Errorf("init output (-want +got):\n%s", diff)
	}

	assert.Error(t, Init(path), "must not overwrite")
}
