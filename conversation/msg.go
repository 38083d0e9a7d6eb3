package conversation

import "github.com/miosa/chatai/client"

// Outcome is implemented by every result message the machine produces.
type Outcome interface {
	Failure() error
}

// ConversationsLoaded carries the result of ListConversations.
type ConversationsLoaded struct {
	IDs []int64
	Err error

	gen uint64
}

// Started carries the result of StartConversation.
type Started struct {
	ID  int64
	Err error

	epoch uint64
	gen   uint64
}

// HistoryLoaded carries the result of FetchHistory.
type HistoryLoaded struct {
	ID       int64
	Messages []client.Message
	Err      error

	epoch uint64
	gen   uint64
}

// MessageSent carries the result of SendMessage. Target is the conversation
// the request was addressed to.
type MessageSent struct {
	Target int64
	Model  client.Model
	Prompt string
	Reply  *client.Message
	Err    error

	detached bool
	gen      uint64
}

func (m ConversationsLoaded) Failure() error { return m.Err }
func (m Started) Failure() error             { return m.Err }
func (m HistoryLoaded) Failure() error       { return m.Err }
func (m MessageSent) Failure() error         { return m.Err }

// result is implemented by every message tied to a machine generation.
type result interface {
	generation() uint64
}

func (m ConversationsLoaded) generation() uint64 { return m.gen }
func (m Started) generation() uint64             { return m.gen }
func (m HistoryLoaded) generation() uint64       { return m.gen }
func (m MessageSent) generation() uint64         { return m.gen }
