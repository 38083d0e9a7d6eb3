package model

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/style"
)

// PickerItem is a single entry in the model picker.
type PickerItem struct {
	Model  client.Model
	Blurb  string
	Active bool
}

// PickerChoice is emitted when the user selects a model.
type PickerChoice struct {
	Model client.Model
}

// PickerCancel is emitted when the user presses Esc.
type PickerCancel struct{}

var modelBlurbs = map[client.Model]string{
	client.ModelGPT:    "OpenAI",
	client.ModelClaude: "Anthropic",
	client.ModelGemini: "Google",
}

// PickerItems lists every model with active marking the current one.
func PickerItems(active client.Model) []PickerItem {
	items := make([]PickerItem, 0, len(client.Models))
	for _, m := range client.Models {
		items = append(items, PickerItem{Model: m, Blurb: modelBlurbs[m], Active: m == active})
	}
	return items
}

// PickerModel renders a vertical list of models with arrow-key navigation.
type PickerModel struct {
	items  []PickerItem
	cursor int
	active bool
	width  int
}

// NewPicker returns an inactive picker.
func NewPicker() PickerModel {
	return PickerModel{}
}

// SetItems populates the picker, puts the cursor on the active model and
// shows it.
func (m *PickerModel) SetItems(items []PickerItem) {
	m.items = items
	m.cursor = 0
	m.active = true
	for i, item := range items {
		if item.Active {
			m.cursor = i
			break
		}
	}
}

// Clear hides the picker.
func (m *PickerModel) Clear() {
	m.active = false
	m.items = nil
	m.cursor = 0
}

// IsActive reports whether the picker is currently visible.
func (m PickerModel) IsActive() bool {
	return m.active
}

// SetWidth constrains the picker to the terminal width.
func (m *PickerModel) SetWidth(w int) {
	m.width = w
}

// Update handles keyboard input when the picker is active. Digits pick the
// model at that position directly.
func (m PickerModel) Update(message tea.Msg) (PickerModel, tea.Cmd) {
	if !m.active || len(m.items) == 0 {
		return m, nil
	}
	keyMsg, ok := message.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyUp:
		m.cursor = (m.cursor + len(m.items) - 1) % len(m.items)
	case tea.KeyDown, tea.KeyTab:
		m.cursor = (m.cursor + 1) % len(m.items)
	case tea.KeyEnter:
		return m.choose(m.cursor)
	case tea.KeyEsc:
		m.Clear()
		return m, func() tea.Msg { return PickerCancel{} }
	case tea.KeyRunes:
		if len(keyMsg.Runes) == 1 {
			if d := int(keyMsg.Runes[0] - '1'); d >= 0 && d < len(m.items) {
				return m.choose(d)
			}
		}
	}
	return m, nil
}

func (m PickerModel) choose(i int) (PickerModel, tea.Cmd) {
	chosen := m.items[i].Model
	m.Clear()
	return m, func() tea.Msg { return PickerChoice{Model: chosen} }
}

// View renders the picker panel.
func (m PickerModel) View() string {
	if !m.active || len(m.items) == 0 {
		return ""
	}

	var sb strings.Builder
	header := lipgloss.NewStyle().Foreground(style.Primary).Bold(true).Render("◈ Select Model")
	hint := lipgloss.NewStyle().Foreground(style.Muted).Render("  ↑↓ navigate · Enter select · Esc cancel")
	sb.WriteString(header + hint + "\n\n")

	for i, item := range m.items {
		sb.WriteString(m.renderItem(i, item, i == m.cursor))
		sb.WriteString("\n")
	}

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(style.Border).
		Padding(0, 1)
	if m.width > 0 {
		boxStyle = boxStyle.Width(m.width - 2)
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

func (m PickerModel) renderItem(i int, item PickerItem, isCursor bool) string {
	cursor := "    "
	if isCursor {
		cursor = lipgloss.NewStyle().Foreground(style.Primary).Bold(true).Render("  > ")
	}

	marker := lipgloss.NewStyle().Foreground(style.Muted).Render("○")
	if item.Active {
		marker = lipgloss.NewStyle().Foreground(style.ModelColor(string(item.Model))).Render("●")
	}

	num := style.Hint.Render(string(rune('1'+i)) + " ")
	name := style.ModelLabel(string(item.Model), item.Model.DisplayName())
	blurb := lipgloss.NewStyle().Foreground(style.Muted).Render("  " + item.Blurb)

	var activeLabel string
	if item.Active {
		activeLabel = lipgloss.NewStyle().Foreground(style.Success).Render("  active")
	}
	return cursor + num + marker + " " + name + blurb + activeLabel
}
