package client

import (
	"errors"
	"fmt"
	"strings"
)

// Op names a Gateway operation. Its fallback message is what the user sees
// when the Gateway does not supply one.
type Op string

const (
	OpLogin        Op = "login"
	OpSignup       Op = "signup"
	OpRefresh      Op = "refresh"
	OpStart        Op = "start_conversation"
	OpSend         Op = "send_message"
	OpHistory      Op = "history"
	OpListSessions Op = "list_conversations"
)

var fallbackMessages = map[Op]string{
	OpLogin:        "Login failed",
	OpSignup:       "Signup failed",
	OpRefresh:      "Token refresh failed",
	OpStart:        "Failed to start conversation",
	OpSend:         "Failed to send message",
	OpHistory:      "Failed to fetch chat history",
	OpListSessions: "Failed to list conversations",
}

// Fallback returns the fixed message used for op when the Gateway gives none.
func (op Op) Fallback() string {
	if msg, ok := fallbackMessages[op]; ok {
		return msg
	}
	return "Request failed"
}

// RateLimitMarker is the substring the Gateway puts in the message of a
// rate-limited send.
const RateLimitMarker = "Rate limit reached"

var (
	// ErrNoSession is returned without any network traffic when an
	// authenticated call is attempted with no access token.
	ErrNoSession = errors.New("not logged in")

	// ErrSessionExpired wraps the 401 of an authenticated call whose token
	// could not be refreshed.
	ErrSessionExpired = errors.New("session expired")
)

// GatewayError is a non-2xx reply or a transport failure. Status is 0 when
// no reply was received.
type GatewayError struct {
	Op      Op
	Status  int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ErrorMessage is the text to show a user for err. A GatewayError anywhere in
// the chain contributes its message, with no transport detail.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		if errors.Is(err, ErrSessionExpired) {
			return "Session expired. Please log in again."
		}
		return gerr.Message
	}
	if errors.Is(err, ErrNoSession) {
		return "Please log in first."
	}
	return err.Error()
}

// IsRateLimited reports whether err carries the Gateway's rate-limit marker.
func IsRateLimited(err error) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && strings.Contains(gerr.Message, RateLimitMarker)
}

// IsAuthFailure reports whether err means the user must log in again.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionExpired)
}
