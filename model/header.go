package model

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/style"
)

// HeaderModel renders the one-line title bar:
//
//	CHAT A.I+ v0.3.0 · Claude · Conversation 7
type HeaderModel struct {
	version      string
	model        client.Model
	conversation int64
	limited      bool
	width        int
}

// NewHeader returns a header showing version.
func NewHeader(version string) HeaderModel {
	return HeaderModel{version: version}
}

// SetModel sets the selected model.
func (m *HeaderModel) SetModel(model client.Model) { m.model = model }

// SetConversation sets the active conversation; 0 means a new one.
func (m *HeaderModel) SetConversation(id int64) { m.conversation = id }

// SetLimited toggles the daily limit banner under the title.
func (m *HeaderModel) SetLimited(v bool) { m.limited = v }

// SetWidth sets the width of the limit banner.
func (m *HeaderModel) SetWidth(w int) { m.width = w }

// View renders the title line and, when rate limited, the limit banner.
func (m HeaderModel) View() string {
	sep := style.Faint.Render(" · ")
	title := style.BannerTitle.Render("CHAT A.I+")
	if m.version != "" {
		title += " " + style.BannerDetail.Render(m.version)
	}
	conv := "New conversation"
	if m.conversation > 0 {
		conv = fmt.Sprintf("Conversation %d", m.conversation)
	}
	line := title + sep + style.ModelLabel(string(m.model), m.model.DisplayName()) + sep + style.BannerDetail.Render(conv)
	if !m.limited {
		return line
	}
	return lipgloss.JoinVertical(lipgloss.Left, line, LimitBanner(m.width))
}

// LimitBanner renders the notice shown once the daily message quota is used.
func LimitBanner(width int) string {
	body := style.LimitTitle.Render("Daily message limit reached") + "\n" +
		style.Faint.Render("You have reached your daily message limit. Please try again tomorrow.")
	box := style.LimitBanner
	if width > 4 {
		box = box.Width(width - 2)
	}
	return box.Render(body)
}
