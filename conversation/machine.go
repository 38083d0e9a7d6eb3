package conversation

import (
	"context"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/session"
)

// TimestampLayout is the format of optimistic message timestamps, matching
// the Gateway's ISO-8601 UTC strings.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Gateway is the subset of the Gateway client the machine calls.
type Gateway interface {
	StartConversation(ctx context.Context) (int64, error)
	SendMessage(ctx context.Context, req client.SendRequest) (*client.Message, error)
	History(ctx context.Context, id int64) ([]client.Message, error)
	ListConversations(ctx context.Context) ([]int64, error)
}

type queuedSend struct {
	model  client.Model
	prompt string
	epoch  uint64
}

// Machine is the conversation state machine. It is not safe for concurrent
// use; call it from the Bubble Tea Update goroutine only.
type Machine struct {
	gw    Gateway
	store session.Store
	ctx   context.Context
	now   func() time.Time

	state State

	// epoch increments whenever the active conversation is replaced by the
	// user, so replies addressed to an older view can be recognised.
	epoch    uint64
	// gen increments on Reset. Results from an older gen belong to a
	// previous user and are dropped without effect.
	gen      uint64
	inflight int
	starting bool
	queued   []queuedSend
}

// Option configures a Machine.
type Option func(*Machine)

// WithContext sets the context every Gateway call runs under.
func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

// WithClock overrides the clock used for optimistic timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New returns a machine with no active conversation.
func New(gw Gateway, store session.Store, opts ...Option) *Machine {
	m := &Machine{
		gw:    gw,
		store: store,
		ctx:   context.Background(),
		now:   time.Now,
		state: State{MessagesLoaded: true},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	s := m.state
	s.Messages = slices.Clone(s.Messages)
	s.KnownIDs = slices.Clone(s.KnownIDs)
	s.Loading = m.inflight > 0
	return s
}

// Starting reports whether a StartConversation call is outstanding.
func (m *Machine) Starting() bool { return m.starting }

// Reset drops everything tied to the current user. Calls still in flight
// complete against an older generation and are discarded.
func (m *Machine) Reset() {
	m.gen++
	m.epoch++
	m.inflight = 0
	m.starting = false
	m.queued = nil
	m.state = State{MessagesLoaded: true}
}

// ListConversations fetches the ids of the user's conversations.
func (m *Machine) ListConversations() tea.Cmd {
	m.begin()
	gw, ctx, gen := m.gw, m.ctx, m.gen
	return func() tea.Msg {
		ids, err := gw.ListConversations(ctx)
		return ConversationsLoaded{IDs: ids, Err: err, gen: gen}
	}
}

// StartConversation asks the Gateway for a new conversation id. While a
// start is outstanding further calls return nil.
func (m *Machine) StartConversation() tea.Cmd {
	if m.starting {
		log.Debug().Msg("start conversation already pending")
		return nil
	}
	m.starting = true
	m.begin()
	gw, ctx, epoch, gen := m.gw, m.ctx, m.epoch, m.gen
	return func() tea.Msg {
		id, err := gw.StartConversation(ctx)
		return Started{ID: id, Err: err, epoch: epoch, gen: gen}
	}
}

// SelectConversation makes id the active conversation and empties the
// message list. It reports false, changing nothing, when id is already
// active.
func (m *Machine) SelectConversation(id int64) bool {
	if id == m.state.Active {
		return false
	}
	m.epoch++
	m.state.Active = id
	m.state.Messages = nil
	m.state.Error = ""
	m.state.MessagesLoaded = false
	m.state.JustStarted = false
	return true
}

// Select is SelectConversation followed by the history fetch it implies.
func (m *Machine) Select(id int64) tea.Cmd {
	if !m.SelectConversation(id) {
		return nil
	}
	return m.FetchHistory(id)
}

// FetchHistory replaces the message list with the Gateway's history of id.
func (m *Machine) FetchHistory(id int64) tea.Cmd {
	m.begin()
	m.state.MessagesLoaded = false
	gw, ctx, epoch, gen := m.gw, m.ctx, m.epoch, m.gen
	return func() tea.Msg {
		msgs, err := gw.History(ctx, id)
		return HistoryLoaded{ID: id, Messages: msgs, Err: err, epoch: epoch, gen: gen}
	}
}

// Clear returns to the no-conversation state. KnownIDs are kept.
func (m *Machine) Clear() {
	m.epoch++
	m.state.Active = 0
	m.state.Messages = nil
	m.state.Error = ""
	m.state.MessagesLoaded = true
	m.state.JustStarted = false
}

// AddOptimisticMessage appends an unanswered message for prompt.
func (m *Machine) AddOptimisticMessage(model client.Model, prompt string) {
	conv := m.state.Active
	if conv == 0 {
		conv = NoConversation
	}
	m.state.Messages = append(m.state.Messages, client.Message{
		Model:              model,
		Prompt:             prompt,
		ConversationNumber: conv,
		Timestamp:          m.now().UTC().Format(TimestampLayout),
	})
}

// SendMessage submits prompt to conversation id.
func (m *Machine) SendMessage(model client.Model, prompt string, id int64) tea.Cmd {
	return m.sendTo(model, prompt, id, false)
}

// sendTo is SendMessage. A detached reply is never merged into the message
// list; it is used for prompts whose view was cleared before they left.
func (m *Machine) sendTo(model client.Model, prompt string, id int64, detached bool) tea.Cmd {
	m.begin()
	gw, ctx, gen := m.gw, m.ctx, m.gen
	return func() tea.Msg {
		reply, err := gw.SendMessage(ctx, client.SendRequest{Model: model, Prompt: prompt, ConversationNumber: id})
		return MessageSent{
			Target: id, Model: model, Prompt: prompt, Reply: reply, Err: err,
			detached: detached, gen: gen,
		}
	}
}

// Send is the user's "send this prompt" intent. The prompt appears in the
// message list immediately. With no active conversation one is started
// first and the prompt is sent to the minted id; prompts sent while that
// start is outstanding ride along with it.
func (m *Machine) Send(model client.Model, prompt string) (tea.Cmd, error) {
	prompt = strings.TrimSpace(prompt)
	switch {
	case prompt == "":
		return nil, ErrEmptyPrompt
	case !model.Valid():
		return nil, ErrUnknownModel
	case m.store.AccessToken() == "":
		return nil, client.ErrNoSession
	case m.state.RateLimited():
		return nil, ErrRateLimited
	}

	m.AddOptimisticMessage(model, prompt)
	if m.state.HasActive() {
		return m.SendMessage(model, prompt, m.state.Active), nil
	}
	m.queued = append(m.queued, queuedSend{model: model, prompt: prompt, epoch: m.epoch})
	return m.StartConversation(), nil
}

// Current reports whether msg was issued since the last Reset. Messages
// that are not machine results are always current.
func (m *Machine) Current(msg tea.Msg) bool {
	r, ok := msg.(result)
	return !ok || r.generation() == m.gen
}

// Update applies a result message. It returns follow-up commands, if any.
func (m *Machine) Update(msg tea.Msg) tea.Cmd {
	if !m.Current(msg) {
		log.Debug().Type("msg", msg).Msg("discarding result from a previous session")
		return nil
	}
	switch msg := msg.(type) {
	case ConversationsLoaded:
		m.finish()
		if msg.Err != nil {
			m.fail("list conversations", msg.Err)
			return nil
		}
		m.state.KnownIDs = slices.Clone(msg.IDs)
		m.state.Error = ""

	case Started:
		m.finish()
		m.starting = false
		queued := m.queued
		m.queued = nil
		if msg.Err != nil {
			m.fail("start conversation", msg.Err)
			return nil
		}
		m.remember(msg.ID)
		current := msg.epoch == m.epoch
		for _, q := range queued {
			current = current || q.epoch == m.epoch
		}
		if current {
			m.state.Active = msg.ID
			m.state.MessagesLoaded = true
			m.state.JustStarted = true
			m.state.Error = ""
		} else {
			log.Debug().Int64("conversation", msg.ID).Msg("conversation started after the view moved on")
		}
		cmds := make([]tea.Cmd, 0, len(queued))
		for _, q := range queued {
			cmds = append(cmds, m.sendTo(q.model, q.prompt, msg.ID, q.epoch != m.epoch))
		}
		return tea.Batch(cmds...)

	case HistoryLoaded:
		m.finish()
		if msg.epoch != m.epoch || msg.ID != m.state.Active {
			log.Debug().Int64("conversation", msg.ID).Msg("discarding stale history")
			return nil
		}
		m.state.MessagesLoaded = true
		if msg.Err != nil {
			m.fail("fetch history", msg.Err)
			return nil
		}
		m.state.Messages = slices.Clone(msg.Messages)
		m.state.Error = ""

	case MessageSent:
		m.finish()
		if msg.Err != nil {
			m.fail("send message", msg.Err)
			return nil
		}
		if msg.Reply == nil {
			return nil
		}
		reply := *msg.Reply
		if reply.Prompt == "" {
			reply.Prompt = msg.Prompt
		}
		if reply.Model == "" {
			reply.Model = msg.Model
		}
		if reply.ConversationNumber <= 0 {
			reply.ConversationNumber = msg.Target
		}
		m.remember(reply.ConversationNumber)
		if msg.detached || msg.Target != m.state.Active {
			log.Debug().
				Int64("target", msg.Target).
				Int64("active", m.state.Active).
				Bool("detached", msg.detached).
				Msg("reply for inactive conversation")
			return nil
		}
		m.state.Messages = reconcile(m.state.Messages, reply)
		m.state.Active = reply.ConversationNumber
		m.state.JustStarted = false
		m.state.Error = ""
	}
	return nil
}

// reconcile fills the earliest unanswered message matching reply's prompt
// and model, or appends reply when none matches.
func reconcile(msgs []client.Message, reply client.Message) []client.Message {
	for i := range msgs {
		if msgs[i].Pending() && msgs[i].Prompt == reply.Prompt && msgs[i].Model == reply.Model {
			msgs[i].Response = reply.Response
			msgs[i].Timestamp = reply.Timestamp
			msgs[i].ConversationNumber = reply.ConversationNumber
			return msgs
		}
	}
	return append(msgs, reply)
}

func (m *Machine) remember(id int64) {
	if id > 0 && !slices.Contains(m.state.KnownIDs, id) {
		m.state.KnownIDs = append(m.state.KnownIDs, id)
	}
}

func (m *Machine) begin() {
	m.inflight++
	m.state.Error = ""
}

func (m *Machine) finish() {
	if m.inflight > 0 {
		m.inflight--
	}
}

func (m *Machine) fail(op string, err error) {
	m.state.Error = client.ErrorMessage(err)
	if client.IsRateLimited(err) {
		m.state.Limited = true
	}
	log.Warn().Err(err).Str("op", op).Msg("conversation request failed")
}
