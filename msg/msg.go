// Package msg defines the app-level tea.Msg types of the chatai TUI.
// Results of Gateway calls are defined next to the machines that produce
// them (auth.Result, conversation.Started, ...). This package has no
// upstream imports so every view component can use it.
package msg

import "time"

// TickMsg drives toast expiry.
type TickMsg struct {
	Time time.Time
}

// SubmitInput when the user presses Enter in the chat input.
type SubmitInput struct {
	Text string
}

// FormKind identifies an auth form.
type FormKind int

const (
	FormLogin FormKind = iota
	FormSignup
)

// FormSubmitted when the user presses Enter on the last field of a form or
// on its button.
type FormSubmitted struct {
	Kind   FormKind
	Values map[string]string
}
