package app

// State is the screen the app is showing.
type State int

const (
	StateLogin  State = iota // Login form (no session)
	StateSignup              // Signup form (no session)
	StateChat                // Chat screen, input focused
	StateBrowse              // Chat screen, conversation sidebar focused
	StatePicker              // Model picker over the chat screen
)

func (s State) String() string {
	switch s {
	case StateLogin:
		return "login"
	case StateSignup:
		return "signup"
	case StateChat:
		return "chat"
	case StateBrowse:
		return "browse"
	case StatePicker:
		return "picker"
	default:
		return "unknown"
	}
}

// Private reports whether the state requires a session.
func (s State) Private() bool {
	return s == StateChat || s == StateBrowse || s == StatePicker
}
