package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/miosa/chatai/msg"
	"github.com/miosa/chatai/style"
)

// InputModel is the chat input bar with history navigation and slash
// command autocomplete.
//
//   - Up/Down walk through previously sent prompts
//   - Tab on a buffer starting with "/" cycles matching commands
//   - Enter emits msg.SubmitInput
//
// A disabled input ignores typing and shows its disabled placeholder.
type InputModel struct {
	ti         textinput.Model
	history    []string
	historyIdx int // points one past the last entry when not navigating

	commands   []string
	tabIdx     int // -1 = not completing
	tabMatches []string

	placeholder string
	disabled    bool
}

// NewInput returns a ready-to-use InputModel.
func NewInput() InputModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 8192
	return InputModel{ti: ti, tabIdx: -1}
}

// SetCommands replaces the command list used for Tab autocomplete.
func (m *InputModel) SetCommands(cmds []string) {
	m.commands = cmds
}

// SetPlaceholder sets the hint shown in an empty, enabled input.
func (m *InputModel) SetPlaceholder(p string) {
	m.placeholder = p
	if !m.disabled {
		m.ti.Placeholder = p
	}
}

// SetDisabled blocks typing and replaces the placeholder with reason.
func (m *InputModel) SetDisabled(disabled bool, reason string) {
	m.disabled = disabled
	if disabled {
		m.ti.Placeholder = reason
		return
	}
	m.ti.Placeholder = m.placeholder
}

// Disabled reports whether typing is blocked.
func (m InputModel) Disabled() bool { return m.disabled }

// SetWidth sets the visible width of the field.
func (m *InputModel) SetWidth(w int) {
	m.ti.Width = max(w-3, 10)
}

// Focus gives keyboard focus to the input.
func (m *InputModel) Focus() tea.Cmd {
	return m.ti.Focus()
}

// Blur removes keyboard focus from the input.
func (m *InputModel) Blur() {
	m.ti.Blur()
}

// Value returns the current raw text in the input field.
func (m InputModel) Value() string {
	return m.ti.Value()
}

// Reset clears the input field and resets autocomplete state.
func (m *InputModel) Reset() {
	m.historyIdx = len(m.history)
	m.ti.SetValue("")
	m.resetTab()
}

// Submit records text in history and clears the field.
func (m *InputModel) Submit(text string) {
	if text != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != text) {
		m.history = append(m.history, text)
	}
	m.Reset()
}

func (m *InputModel) resetTab() {
	m.tabIdx = -1
	m.tabMatches = nil
}

// Update intercepts Up/Down for history, Tab for autocomplete and Enter
// for submission before delegating remaining keys to the textinput.
func (m InputModel) Update(message tea.Msg) (InputModel, tea.Cmd) {
	if keyMsg, ok := message.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			text := m.ti.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			if m.disabled && !strings.HasPrefix(strings.TrimSpace(text), "/") {
				return m, nil
			}
			return m, func() tea.Msg { return msg.SubmitInput{Text: text} }
		case tea.KeyUp:
			return m.navigateHistory(-1), nil
		case tea.KeyDown:
			return m.navigateHistory(+1), nil
		case tea.KeyTab:
			return m.cycleComplete(), nil
		default:
			m.resetTab()
		}
		if m.disabled && !strings.HasPrefix(m.ti.Value()+string(keyMsg.Runes), "/") && keyMsg.Type == tea.KeyRunes {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(message)
	return m, cmd
}

// View renders the prompt character followed by the textinput view.
func (m InputModel) View() string {
	prompt := style.PromptChar.Render("❯ ")
	if m.disabled {
		prompt = style.Faint.Render("❯ ")
	}
	return prompt + m.ti.View()
}

func (m InputModel) navigateHistory(delta int) InputModel {
	if len(m.history) == 0 {
		return m
	}
	next := min(max(m.historyIdx+delta, 0), len(m.history))
	m.historyIdx = next
	if next == len(m.history) {
		m.ti.SetValue("")
	} else {
		m.ti.SetValue(m.history[next])
		m.ti.CursorEnd()
	}
	return m
}

func (m InputModel) cycleComplete() InputModel {
	current := m.ti.Value()
	if !strings.HasPrefix(current, "/") {
		return m
	}
	if m.tabIdx == -1 || m.tabMatches == nil {
		m.tabMatches = matchCommands(m.commands, current)
		if len(m.tabMatches) == 0 {
			return m
		}
		m.tabIdx = 0
	} else {
		m.tabIdx = (m.tabIdx + 1) % len(m.tabMatches)
	}
	m.ti.SetValue(m.tabMatches[m.tabIdx])
	m.ti.CursorEnd()
	return m
}

func matchCommands(commands []string, prefix string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
