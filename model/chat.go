package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/conversation"
	"github.com/miosa/chatai/markdown"
	"github.com/miosa/chatai/style"
)

// timestampLayouts are the formats the Gateway has been seen to use.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	time.RFC1123,
	"2006-01-02 15:04:05",
}

// ChatModel is a scrollable viewport that displays the active
// conversation: one prompt/response pair per message, a spinner for
// responses still on their way, and the empty-conversation placeholder.
type ChatModel struct {
	vp       viewport.Model
	spinner  spinner.Model
	state    conversation.State
	selected client.Model
	width    int
	height   int

	// rendered caches markdown output by response text; reset on resize.
	rendered map[string]string
}

// NewChat constructs a ChatModel sized to width x height.
func NewChat(width, height int) ChatModel {
	vp := viewport.New(width, height)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(style.SpinnerStyle))
	return ChatModel{
		vp:       vp,
		spinner:  sp,
		width:    width,
		height:   height,
		rendered: map[string]string{},
	}
}

// SetState replaces what the chat shows. selected is the model new prompts
// go to and names the placeholder.
func (m *ChatModel) SetState(st conversation.State, selected client.Model) {
	grew := len(st.Messages) != len(m.state.Messages)
	m.state = st
	m.selected = selected
	m.refresh(grew)
}

// SetSize resizes the underlying viewport.
func (m *ChatModel) SetSize(width, height int) {
	if width != m.width {
		m.rendered = map[string]string{}
	}
	m.width = width
	m.height = height
	m.vp.Width = width
	m.vp.Height = height
	m.refresh(false)
}

// Tick starts the thinking spinner.
func (m ChatModel) Tick() tea.Cmd {
	return m.spinner.Tick
}

// Thinking reports whether any response is still pending.
func (m ChatModel) Thinking() bool {
	return m.state.Pending() > 0
}

// Update advances the spinner and forwards scrolling to the viewport.
func (m ChatModel) Update(message tea.Msg) (ChatModel, tea.Cmd) {
	if tick, ok := message.(spinner.TickMsg); ok {
		if !m.Thinking() && m.state.MessagesLoaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(tick)
		m.refresh(false)
		return m, cmd
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(message)
	return m, cmd
}

// View returns the rendered viewport content.
func (m ChatModel) View() string {
	return m.vp.View()
}

func (m *ChatModel) refresh(jump bool) {
	follow := jump || m.vp.AtBottom()
	m.vp.SetContent(m.renderAll())
	if follow {
		m.vp.GotoBottom()
	}
}

func (m *ChatModel) renderAll() string {
	st := m.state
	switch {
	case st.ShowPlaceholder() && !st.HasActive():
		return m.placeholder(fmt.Sprintf("Start a conversation with %s", m.selected.DisplayName()))
	case st.ShowPlaceholder():
		return m.placeholder("Continue your conversation")
	case len(st.Messages) == 0 && !st.MessagesLoaded:
		return style.Faint.Render("  " + m.spinner.View() + " Loading conversation...")
	}

	var sb strings.Builder
	for i, msg := range st.Messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.renderMessage(msg))
	}
	return sb.String()
}

func (m *ChatModel) placeholder(text string) string {
	lines := []string{
		style.ModelLabel(string(m.selected), "◈ "+m.selected.DisplayName()),
		"",
		style.Placeholder.Render(text),
		style.Hint.Render("Type a message below and press enter."),
	}
	return "\n" + indent(strings.Join(lines, "\n"), 2)
}

func (m *ChatModel) renderMessage(msg client.Message) string {
	var sb strings.Builder
	sb.WriteString(style.UserLabel.Render("❯ You") + "\n")
	sb.WriteString(indent(msg.Prompt, 2) + "\n")

	sb.WriteString(style.ModelLabel(string(msg.Model), "◈ "+msg.Model.DisplayName()) + "\n")
	if msg.Pending() {
		sb.WriteString("  " + m.spinner.View() + style.Faint.Render(msg.Model.DisplayName()+" is thinking..."))
		return sb.String()
	}
	sb.WriteString(m.renderResponse(msg.Response))
	if at := localTime(msg.Timestamp); at != "" {
		sb.WriteString("\n" + style.MsgMeta.Render("  "+at))
	}
	return sb.String()
}

func (m *ChatModel) renderResponse(text string) string {
	if out, ok := m.rendered[text]; ok {
		return out
	}
	out := markdown.Render(text, m.width-2)
	m.rendered[text] = out
	return out
}

// localTime formats an ISO timestamp as local HH:MM, or "" if unparseable.
func localTime(ts string) string {
	if ts == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Local().Format("15:04")
		}
	}
	return ""
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
