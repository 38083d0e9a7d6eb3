// Package conversation owns the client's view of conversations: which one
// is active, its messages, the ids the user owns, and the load/error flags
// the chat screen renders.
//
// Machine is driven the Bubble Tea way. Intents mutate state synchronously
// and return a tea.Cmd that performs the Gateway call; the call's result
// comes back as a message that Update applies. Gateway calls never touch
// machine state.
package conversation

import (
	"errors"
	"strings"

	"github.com/miosa/chatai/client"
)

// NoConversation is the conversation number stamped on an optimistic
// message sent before any conversation exists.
const NoConversation int64 = -1

var (
	ErrEmptyPrompt  = errors.New("prompt is empty")
	ErrRateLimited  = errors.New("daily message limit reached")
	ErrUnknownModel = errors.New("unknown model")
)

// State is a snapshot of the machine. Active is 0 when no conversation is
// selected.
type State struct {
	Active         int64
	Messages       []client.Message
	KnownIDs       []int64
	MessagesLoaded bool
	JustStarted    bool
	Loading        bool
	Error          string

	// Limited is set by a rate-limited send and stays set, even after
	// later errors or successes of other calls, until Reset.
	Limited bool
}

// HasActive reports whether a conversation is selected.
func (s State) HasActive() bool { return s.Active > 0 }

// RateLimited reports whether sending is blocked by the Gateway's daily
// limit.
func (s State) RateLimited() bool {
	return s.Limited || strings.Contains(s.Error, client.RateLimitMarker)
}

// ShowPlaceholder reports whether the empty-conversation prompt should be
// drawn. It never shows while history is loading or right after a start.
func (s State) ShowPlaceholder() bool {
	return s.MessagesLoaded && len(s.Messages) == 0 && !s.JustStarted
}

// Pending counts messages still waiting on a reply.
func (s State) Pending() int {
	n := 0
	for _, m := range s.Messages {
		if m.Pending() {
			n++
		}
	}
	return n
}
