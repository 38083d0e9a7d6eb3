package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors. SetTheme replaces them and rebuilds the styles below.
var (
	Primary   lipgloss.TerminalColor = lipgloss.Color("#7C3AED") // violet-600
	Secondary lipgloss.TerminalColor = lipgloss.Color("#06B6D4") // cyan-500
	Success   lipgloss.TerminalColor = lipgloss.Color("#22C55E") // green-500
	Warning   lipgloss.TerminalColor = lipgloss.Color("#F59E0B") // amber-500
	Error     lipgloss.TerminalColor = lipgloss.Color("#EF4444") // red-500
	Muted     lipgloss.TerminalColor = lipgloss.Color("#6B7280") // gray-500
	Dim       lipgloss.TerminalColor = lipgloss.Color("#374151") // gray-700
	Border    lipgloss.TerminalColor = lipgloss.Color("#4B5563") // gray-600
)

// Per-model accent colors, shared by every theme.
var modelColors = map[string]lipgloss.TerminalColor{
	"gpt":    lipgloss.Color("#10A37F"),
	"claude": lipgloss.Color("#D97757"),
	"gemini": lipgloss.Color("#4285F4"),
}

// ModelColor returns the accent of a model by wire name.
func ModelColor(model string) lipgloss.TerminalColor {
	if c, ok := modelColors[model]; ok {
		return c
	}
	return Primary
}

// ModelLabel renders a model's display name in its accent color.
func ModelLabel(model, display string) string {
	return lipgloss.NewStyle().Foreground(ModelColor(model)).Bold(true).Render(display)
}

var (
	Bold      lipgloss.Style
	Faint     lipgloss.Style
	ErrorText lipgloss.Style
	Hint      lipgloss.Style
	MsgMeta   lipgloss.Style

	// Header
	BannerTitle  lipgloss.Style
	BannerDetail lipgloss.Style

	// Prompt and chat
	PromptChar   lipgloss.Style
	UserLabel    lipgloss.Style
	SpinnerStyle lipgloss.Style
	Placeholder  lipgloss.Style

	// Rate-limit banner
	LimitBanner lipgloss.Style
	LimitTitle  lipgloss.Style

	// Sidebar
	SidebarBox     lipgloss.Style
	SidebarTitle   lipgloss.Style
	SidebarItem    lipgloss.Style
	SidebarActive  lipgloss.Style
	SidebarCursor  lipgloss.Style
	SidebarNewItem lipgloss.Style

	// Auth forms
	FormBox     lipgloss.Style
	FormTitle   lipgloss.Style
	FormTagline lipgloss.Style
	FormLabel   lipgloss.Style
	FieldError  lipgloss.Style
	Button      lipgloss.Style
	ButtonBusy  lipgloss.Style

	// Status bar
	StatusBar lipgloss.Style
)

func init() { build() }

func build() {
	Bold = lipgloss.NewStyle().Bold(true)
	Faint = lipgloss.NewStyle().Foreground(Muted)
	ErrorText = lipgloss.NewStyle().Foreground(Error).Bold(true)
	Hint = lipgloss.NewStyle().Foreground(Dim)
	MsgMeta = lipgloss.NewStyle().Foreground(Muted).Italic(true)

	BannerTitle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	BannerDetail = lipgloss.NewStyle().Foreground(Muted)

	PromptChar = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	UserLabel = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)
	Placeholder = lipgloss.NewStyle().Foreground(Muted).Italic(true)

	LimitBanner = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Error).
		Padding(0, 1)
	LimitTitle = lipgloss.NewStyle().Foreground(Error).Bold(true)

	SidebarBox = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(Border).
		PaddingRight(1)
	SidebarTitle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	SidebarItem = lipgloss.NewStyle().Foreground(Muted)
	SidebarActive = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	SidebarCursor = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	SidebarNewItem = lipgloss.NewStyle().Foreground(Success)

	FormBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(1, 3)
	FormTitle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	FormTagline = lipgloss.NewStyle().Foreground(Muted)
	FormLabel = lipgloss.NewStyle().Foreground(Secondary)
	FieldError = lipgloss.NewStyle().Foreground(Error)
	Button = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(Primary).
		Padding(0, 2).
		Bold(true)
	ButtonBusy = lipgloss.NewStyle().
		Foreground(Muted).
		Background(Dim).
		Padding(0, 2)

	StatusBar = lipgloss.NewStyle().Foreground(Muted).PaddingLeft(1)
}

// Divider draws a horizontal rule of the given width.
func Divider(width int) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().Foreground(Dim).Render(strings.Repeat("─", width))
}
