package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTheme(t *testing.T) {
	t.Cleanup(func() { _ = SetTheme("dark") })

	require.NoError(t, SetTheme("catppuccin"))
	assert.Equal(t, "catppuccin", CurrentThemeName)
	assert.Equal(t, Themes["catppuccin"].Primary, Primary)

	assert.Error(t, SetTheme("solarized"))
	assert.Equal(t, "catppuccin", CurrentThemeName)
}

func TestModelColor_UnknownFallsBackToPrimary(t *testing.T) {
	assert.Equal(t, Primary, ModelColor("llama"))
	assert.NotEqual(t, ModelColor("gpt"), ModelColor("claude"))
}

func TestDivider(t *testing.T) {
	assert.Empty(t, Divider(0))
	assert.Contains(t, Divider(3), "───")
}
