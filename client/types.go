package client

import (
	"fmt"
	"strings"
)

// Model identifies the upstream LLM a prompt is routed to.
type Model string

const (
	ModelGPT    Model = "gpt"
	ModelClaude Model = "claude"
	ModelGemini Model = "gemini"
)

// Models lists every model the Gateway accepts, in picker order.
var Models = []Model{ModelGPT, ModelClaude, ModelGemini}

// Valid reports whether m is one of Models.
func (m Model) Valid() bool {
	for _, known := range Models {
		if m == known {
			return true
		}
	}
	return false
}

// DisplayName is the label shown to the user.
func (m Model) DisplayName() string {
	switch m {
	case ModelGPT:
		return "GPT-4"
	case ModelClaude:
		return "Claude"
	case ModelGemini:
		return "Gemini"
	default:
		return string(m)
	}
}

// ParseModel accepts a wire name or a display name, case-insensitively.
func ParseModel(s string) (Model, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range Models {
		if s == string(m) || s == strings.ToLower(m.DisplayName()) {
			return m, nil
		}
	}
	if s == "gpt-4" || s == "gpt4" || s == "openai" {
		return ModelGPT, nil
	}
	return "", fmt.Errorf("unknown model %q (want gpt, claude or gemini)", s)
}

// Message is one prompt/response pair. A Message with an empty Response is
// still waiting on the Gateway.
type Message struct {
	Model              Model  `json:"model"`
	Prompt             string `json:"prompt"`
	Response           string `json:"response"`
	ConversationNumber int64  `json:"conversation_number"`
	Timestamp          string `json:"timestamp"`
}

// Pending reports whether the Gateway has not answered m yet.
func (m Message) Pending() bool { return m.Response == "" }

// LoginRequest for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupRequest for POST /auth/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse from /auth/login, /auth/signup and /auth/refresh. Refresh
// only returns an access token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// StartConversationResponse from POST /chat/start_conversation.
type StartConversationResponse struct {
	ConversationNumber int64 `json:"conversation_number"`
}

// SendRequest for POST /chat/.
type SendRequest struct {
	Model              Model  `json:"model"`
	Prompt             string `json:"prompt"`
	ConversationNumber int64  `json:"conversation_number"`
}

// ErrorResponse is the body the Gateway attaches to non-2xx replies.
type ErrorResponse struct {
	Message string `json:"message"`
}
