package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/style"
)

// StatusModel renders the bottom status line:
//
//	GPT-4 · Conversation 7 · ~42 tokens · sending…          ctrl+n new chat · ctrl+p model
type StatusModel struct {
	model        client.Model
	conversation int64
	tokens       int
	loading      bool
	pending      int
	bindings     []key.Binding
	width        int
}

// NewStatus returns an empty status line.
func NewStatus() StatusModel {
	return StatusModel{}
}

// SetModel sets the selected model.
func (m *StatusModel) SetModel(model client.Model) { m.model = model }

// SetConversation sets the active conversation; 0 means none.
func (m *StatusModel) SetConversation(id int64) { m.conversation = id }

// SetTokens sets the estimated token count of the input buffer.
func (m *StatusModel) SetTokens(n int) { m.tokens = n }

// SetActivity records outstanding requests and unanswered messages.
func (m *StatusModel) SetActivity(loading bool, pending int) {
	m.loading = loading
	m.pending = pending
}

// SetBindings sets the key hints shown on the right.
func (m *StatusModel) SetBindings(b []key.Binding) { m.bindings = b }

// SetWidth sets the line width used to right-align hints.
func (m *StatusModel) SetWidth(w int) { m.width = w }

// View renders the status line.
func (m StatusModel) View() string {
	parts := []string{style.ModelLabel(string(m.model), m.model.DisplayName())}
	if m.conversation > 0 {
		parts = append(parts, fmt.Sprintf("Conversation %d", m.conversation))
	} else {
		parts = append(parts, "New conversation")
	}
	if m.tokens > 0 {
		parts = append(parts, fmt.Sprintf("~%s tokens", formatTokens(m.tokens)))
	}
	switch {
	case m.pending > 1:
		parts = append(parts, fmt.Sprintf("%d replies pending", m.pending))
	case m.pending == 1:
		parts = append(parts, "waiting for reply")
	case m.loading:
		parts = append(parts, "loading…")
	}
	left := style.StatusBar.Render(strings.Join(parts, style.Faint.Render(" · ")))

	var hints []string
	for _, b := range m.bindings {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	right := style.Hint.Render(strings.Join(hints, " · "))
	if m.width <= 0 || right == "" {
		return left
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}

// formatTokens renders a token count compactly: 950, 1.2k, 125k.
func formatTokens(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 10000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%dk", n/1000)
	}
}
