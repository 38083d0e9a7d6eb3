package model

import (
	"maps"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/miosa/chatai/msg"
	"github.com/miosa/chatai/style"
)

// FormField describes one input of an auth form.
type FormField struct {
	Key         string
	Label       string
	Placeholder string
	Secret      bool
}

const formInputWidth = 36

type formCopy struct {
	title, tagline     string
	button, busyButton string
	switchText         string
}

// FormModel is the login or signup screen: a column of labelled inputs,
// per-field errors, a server error line and a submit button. Focus cycles
// through the inputs and then the button.
type FormModel struct {
	kind   msg.FormKind
	copy   formCopy
	fields []FormField
	inputs []textinput.Model
	focus  int

	errors map[string]string
	banner string
	busy   bool
	width  int
}

// NewLoginForm returns the login screen.
func NewLoginForm() FormModel {
	return newForm(msg.FormLogin, formCopy{
		title:      "Welcome back",
		tagline:    "Sign in to your account to continue",
		button:     "Sign in",
		busyButton: "Signing in...",
		switchText: "Don't have an account? ctrl+s to sign up",
	}, []FormField{
		{Key: "username", Label: "Username", Placeholder: "Enter your username"},
		{Key: "password", Label: "Password", Placeholder: "Enter password", Secret: true},
	})
}

// NewSignupForm returns the signup screen.
func NewSignupForm() FormModel {
	return newForm(msg.FormSignup, formCopy{
		title:      "Sign up",
		tagline:    "Empower your experience, sign up for a free account today",
		button:     "Sign up",
		busyButton: "Creating account...",
		switchText: "Already have an account? ctrl+s to sign in",
	}, []FormField{
		{Key: "username", Label: "Username", Placeholder: "Enter your username"},
		{Key: "email", Label: "Email", Placeholder: "ex: email@domain.com"},
		{Key: "password", Label: "Password", Placeholder: "Enter password", Secret: true},
	})
}

func newForm(kind msg.FormKind, c formCopy, fields []FormField) FormModel {
	inputs := make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Placeholder = f.Placeholder
		ti.CharLimit = 256
		ti.Width = formInputWidth
		ti.Prompt = ""
		if f.Secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		inputs[i] = ti
	}
	return FormModel{kind: kind, copy: c, fields: fields, inputs: inputs}
}

// Kind reports which form this is.
func (m FormModel) Kind() msg.FormKind { return m.kind }

// Focus focuses the first input.
func (m *FormModel) Focus() tea.Cmd {
	return m.setFocus(0)
}

// Blur removes focus from every input.
func (m *FormModel) Blur() {
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

// Reset empties every input and error.
func (m *FormModel) Reset() {
	for i := range m.inputs {
		m.inputs[i].SetValue("")
	}
	m.errors = nil
	m.banner = ""
	m.busy = false
}

// SetErrors shows per-field messages and a form-level message.
func (m *FormModel) SetErrors(fields map[string]string, banner string) {
	m.errors = maps.Clone(fields)
	m.banner = banner
}

// SetBusy swaps the button for its in-progress label.
func (m *FormModel) SetBusy(busy bool) { m.busy = busy }

// SetWidth constrains the form box.
func (m *FormModel) SetWidth(w int) { m.width = w }

// Values returns the current input values keyed by field.
func (m FormModel) Values() map[string]string {
	out := make(map[string]string, len(m.fields))
	for i, f := range m.fields {
		v := m.inputs[i].Value()
		if !f.Secret {
			v = strings.TrimSpace(v)
		}
		out[f.Key] = v
	}
	return out
}

// Update handles navigation and typing. Enter on the last input or on the
// button emits msg.FormSubmitted.
func (m FormModel) Update(message tea.Msg) (FormModel, tea.Cmd) {
	keyMsg, ok := message.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "tab", "down":
		return m, m.setFocus((m.focus + 1) % (len(m.inputs) + 1))
	case "shift+tab", "up":
		return m, m.setFocus((m.focus + len(m.inputs)) % (len(m.inputs) + 1))
	case "enter":
		if m.focus < len(m.inputs)-1 {
			return m, m.setFocus(m.focus + 1)
		}
		if m.busy {
			return m, nil
		}
		kind, values := m.kind, m.Values()
		return m, func() tea.Msg { return msg.FormSubmitted{Kind: kind, Values: values} }
	}
	if m.focus >= len(m.inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	before := m.inputs[m.focus].Value()
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(keyMsg)
	if m.inputs[m.focus].Value() != before {
		delete(m.errors, m.fields[m.focus].Key)
	}
	return m, cmd
}

func (m *FormModel) setFocus(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
			continue
		}
		m.inputs[j].Blur()
	}
	return cmd
}

// View renders the form centered in width.
func (m FormModel) View() string {
	var sb strings.Builder
	sb.WriteString(style.BannerTitle.Render("CHAT A.I+") + "\n\n")
	sb.WriteString(style.FormTitle.Render(m.copy.title) + "\n")
	sb.WriteString(style.FormTagline.Render(m.copy.tagline) + "\n\n")

	for i, f := range m.fields {
		sb.WriteString(style.FormLabel.Render(f.Label) + "\n")
		sb.WriteString(style.PromptChar.Render("❯ ") + m.inputs[i].View() + "\n")
		if e := m.errors[f.Key]; e != "" {
			sb.WriteString(style.FieldError.Render("  "+e) + "\n")
		}
		sb.WriteString("\n")
	}

	if m.banner != "" {
		sb.WriteString(style.ErrorText.Render(m.banner) + "\n\n")
	}

	switch {
	case m.busy:
		sb.WriteString(style.ButtonBusy.Render(m.copy.busyButton))
	case m.focus == len(m.inputs):
		sb.WriteString(style.Button.Underline(true).Render(m.copy.button))
	default:
		sb.WriteString(style.Button.Render(m.copy.button))
	}
	sb.WriteString("\n\n" + style.Faint.Render(m.copy.switchText))

	box := style.FormBox.Render(sb.String())
	if m.width <= 0 {
		return box
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, box)
}
