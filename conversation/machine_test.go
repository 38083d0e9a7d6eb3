package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/session"
)

// ---------------------------------------------------------------------------
// Fake gateway
// ---------------------------------------------------------------------------

type fakeGateway struct {
	mu sync.Mutex

	nextID    int64
	startErr  error
	sendErr   error
	histErr   error
	listErr   error
	ids       []int64
	histories map[int64][]client.Message
	reply     func(req client.SendRequest) *client.Message

	starts  int
	sends   []client.SendRequest
	history []int64
}

func (f *fakeGateway) StartConversation(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return 0, f.startErr
	}
	return f.nextID, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, req client.SendRequest) (*client.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.reply != nil {
		return f.reply(req), nil
	}
	return &client.Message{
		Model: req.Model, Prompt: req.Prompt, Response: "re: " + req.Prompt,
		ConversationNumber: req.ConversationNumber, Timestamp: "2024-05-01T10:00:00.000Z",
	}, nil
}

func (f *fakeGateway) History(_ context.Context, id int64) ([]client.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, id)
	if f.histErr != nil {
		return nil, f.histErr
	}
	return f.histories[id], nil
}

func (f *fakeGateway) ListConversations(context.Context) ([]int64, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

var fixedNow = time.Date(2024, 5, 1, 9, 59, 58, 0, time.UTC)

func newMachine(gw *fakeGateway) *Machine {
	return New(gw, session.NewMemoryStore("tok", "ref"), WithClock(func() time.Time { return fixedNow }))
}

// exec runs cmd and every command it leads to, feeding results back into m.
func exec(m *Machine, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			exec(m, c)
		}
	default:
		exec(m, m.Update(msg))
	}
}

func gatewayErr(op client.Op, msg string) error {
	return &client.GatewayError{Op: op, Status: 500, Message: msg}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestSend_FreshSessionStartsThenSends(t *testing.T) {
	gw := &fakeGateway{nextID: 7, reply: func(req client.SendRequest) *client.Message {
		return &client.Message{Model: req.Model, Prompt: req.Prompt, Response: "Hi there",
			ConversationNumber: 7, Timestamp: "2024-05-01T10:00:00.000Z"}
	}}
	m := newMachine(gw)

	cmd, err := m.Send(client.ModelGPT, "Hello")
	require.NoError(t, err)

	// Optimistic message is visible before anything resolves.
	st := m.State()
	require.Len(t, st.Messages, 1)
	assert.Equal(t, client.Message{
		Model: client.ModelGPT, Prompt: "Hello", ConversationNumber: NoConversation,
		Timestamp: "2024-05-01T09:59:58.000Z",
	}, st.Messages[0])
	assert.True(t, st.Loading)

	// Start resolves with 7 and hands back the send.
	sendCmd := m.Update(cmd())
	require.NotNil(t, sendCmd)
	assert.Equal(t, int64(7), m.State().Active)
	assert.True(t, m.State().JustStarted)

	m.Update(sendCmd())
	st = m.State()
	assert.Equal(t, 1, gw.starts)
	assert.Equal(t, []client.SendRequest{{Model: client.ModelGPT, Prompt: "Hello", ConversationNumber: 7}}, gw.sends)
	require.Len(t, st.Messages, 1, "reply must update in place")
	assert.Equal(t, "Hi there", st.Messages[0].Response)
	assert.Equal(t, int64(7), st.Messages[0].ConversationNumber)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", st.Messages[0].Timestamp)
	assert.Equal(t, int64(7), st.Active)
	assert.False(t, st.JustStarted)
	assert.False(t, st.Loading)
	assert.Contains(t, st.KnownIDs, int64(7))
}

func TestSelect_FromKnownList(t *testing.T) {
	gw := &fakeGateway{ids: []int64{3, 5, 7}, histories: map[int64][]client.Message{
		5: {{Model: client.ModelClaude, Prompt: "p", Response: "r", ConversationNumber: 5}},
	}}
	m := newMachine(gw)

	exec(m, m.ListConversations())
	assert.Equal(t, []int64{3, 5, 7}, m.State().KnownIDs)

	cmd := m.Select(5)
	st := m.State()
	assert.Equal(t, int64(5), st.Active)
	assert.Empty(t, st.Messages)
	assert.False(t, st.MessagesLoaded)
	assert.False(t, st.ShowPlaceholder())

	exec(m, cmd)
	assert.Equal(t, []int64{5}, gw.history)
	st = m.State()
	assert.True(t, st.MessagesLoaded)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "r", st.Messages[0].Response)
}

func TestSend_RateLimitDisablesSending(t *testing.T) {
	gw := &fakeGateway{sendErr: gatewayErr(client.OpSend, "Rate limit reached for today")}
	m := newMachine(gw)
	m.SelectConversation(4)

	cmd, err := m.Send(client.ModelGPT, "one more")
	require.NoError(t, err)
	exec(m, cmd)

	st := m.State()
	assert.Equal(t, "Rate limit reached for today", st.Error)
	assert.True(t, st.RateLimited())
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Pending())

	// The limit survives an unrelated call clearing the error.
	exec(m, m.ListConversations())
	assert.True(t, m.State().RateLimited())

	_, err = m.Send(client.ModelGPT, "again")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, m.State().Messages, 1)
}

func TestSend_RateLimitOutlivesLaterReply(t *testing.T) {
	gw := &fakeGateway{}
	m := newMachine(gw)
	m.SelectConversation(4)

	early, err := m.Send(client.ModelGPT, "early")
	require.NoError(t, err)
	late, err := m.Send(client.ModelGPT, "late")
	require.NoError(t, err)

	gw.sendErr = gatewayErr(client.OpSend, "Rate limit reached for today")
	exec(m, late)
	require.True(t, m.State().RateLimited())

	gw.sendErr = nil
	exec(m, early)
	assert.True(t, m.State().RateLimited(), "a reply to an earlier send keeps the limit")

	m.Reset()
	assert.False(t, m.State().RateLimited())
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestSelectConversation_Idempotent(t *testing.T) {
	once := newMachine(&fakeGateway{})
	once.SelectConversation(5)

	twice := newMachine(&fakeGateway{})
	twice.SelectConversation(5)
	assert.False(t, twice.SelectConversation(5))

	if diff := cmp.Diff(once.State(), twice.State()); diff != "" {
		t.Errorf("state differs (-once +twice):\n%s", diff)
	}
	assert.Equal(t, once.epoch, twice.epoch)
	assert.Nil(t, twice.Select(5))
}

func TestReconcile_FillsFirstMatchOnly(t *testing.T) {
	gw := &fakeGateway{}
	m := newMachine(gw)
	m.SelectConversation(2)
	m.AddOptimisticMessage(client.ModelGPT, "a")
	m.AddOptimisticMessage(client.ModelGPT, "a")

	exec(m, m.SendMessage(client.ModelGPT, "a", 2))

	st := m.State()
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "re: a", st.Messages[0].Response)
	assert.True(t, st.Messages[1].Pending())
}

func TestReconcile_AppendsWithoutPlaceholder(t *testing.T) {
	gw := &fakeGateway{}
	m := newMachine(gw)
	m.SelectConversation(2)
	m.AddOptimisticMessage(client.ModelClaude, "a")

	exec(m, m.SendMessage(client.ModelGPT, "b", 2))

	st := m.State()
	require.Len(t, st.Messages, 2)
	assert.True(t, st.Messages[0].Pending())
	assert.Equal(t, client.Message{
		Model: client.ModelGPT, Prompt: "b", Response: "re: b",
		ConversationNumber: 2, Timestamp: "2024-05-01T10:00:00.000Z",
	}, st.Messages[1])
}

func TestLoading_ClearedOnEveryRejection(t *testing.T) {
	boom := errors.New("connection refused")
	gw := &fakeGateway{startErr: boom, sendErr: boom, histErr: boom, listErr: boom}
	m := newMachine(gw)

	for name, cmd := range map[string]func() tea.Cmd{
		"list":    m.ListConversations,
		"start":   m.StartConversation,
		"history": func() tea.Cmd { m.SelectConversation(9); return m.FetchHistory(9) },
		"send":    func() tea.Cmd { return m.SendMessage(client.ModelGPT, "x", 9) },
	} {
		c := cmd()
		require.NotNil(t, c, name)
		assert.True(t, m.State().Loading, name)
		exec(m, c)
		assert.False(t, m.State().Loading, name)
		assert.NotEmpty(t, m.State().Error, name)
	}
}

func TestFallbackMessages(t *testing.T) {
	gw := &fakeGateway{histErr: gatewayErr(client.OpHistory, client.OpHistory.Fallback())}
	m := newMachine(gw)
	exec(m, m.Select(3))

	st := m.State()
	assert.Equal(t, "Failed to fetch chat history", st.Error)
	assert.True(t, st.MessagesLoaded, "a failed fetch must not leave the view waiting")
}

// ---------------------------------------------------------------------------
// Start guard and queued sends
// ---------------------------------------------------------------------------

func TestStartConversation_GuardedWhilePending(t *testing.T) {
	gw := &fakeGateway{nextID: 11}
	m := newMachine(gw)

	first := m.StartConversation()
	require.NotNil(t, first)
	assert.Nil(t, m.StartConversation())
	assert.True(t, m.Starting())

	exec(m, first)
	assert.Equal(t, 1, gw.starts)
	assert.False(t, m.Starting())
	assert.Equal(t, int64(11), m.State().Active)
}

func TestSend_BurstBeforeStartCreatesOneConversation(t *testing.T) {
	gw := &fakeGateway{nextID: 8}
	m := newMachine(gw)

	start, err := m.Send(client.ModelGPT, "first")
	require.NoError(t, err)
	again, err := m.Send(client.ModelGemini, "second")
	require.NoError(t, err)
	assert.Nil(t, again)

	exec(m, start)

	assert.Equal(t, 1, gw.starts)
	require.Len(t, gw.sends, 2)
	for _, s := range gw.sends {
		assert.Equal(t, int64(8), s.ConversationNumber)
	}
	st := m.State()
	require.Len(t, st.Messages, 2)
	assert.Zero(t, st.Pending())
	assert.Equal(t, client.ModelGemini, st.Messages[1].Model)
}

func TestSend_StartFailureKeepsOptimisticMessage(t *testing.T) {
	gw := &fakeGateway{startErr: gatewayErr(client.OpStart, client.OpStart.Fallback())}
	m := newMachine(gw)

	cmd, err := m.Send(client.ModelGPT, "Hello")
	require.NoError(t, err)
	exec(m, cmd)

	st := m.State()
	assert.Equal(t, "Failed to start conversation", st.Error)
	assert.Empty(t, gw.sends)
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Pending())
	assert.False(t, m.Starting())
}

func TestSend_RejectsSynchronously(t *testing.T) {
	m := New(&fakeGateway{}, session.NewMemoryStore("", ""))

	_, err := m.Send(client.ModelGPT, "   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = m.Send("llama", "hi")
	assert.ErrorIs(t, err, ErrUnknownModel)
	_, err = m.Send(client.ModelGPT, "hi")
	assert.ErrorIs(t, err, client.ErrNoSession)
	assert.Empty(t, m.State().Messages)
}

// ---------------------------------------------------------------------------
// Stale responses
// ---------------------------------------------------------------------------

func TestSendReply_AfterSwitchDoesNotTouchNewConversation(t *testing.T) {
	gw := &fakeGateway{}
	m := newMachine(gw)
	m.SelectConversation(3)

	cmd, err := m.Send(client.ModelGPT, "for three")
	require.NoError(t, err)

	m.SelectConversation(5)
	m.AddOptimisticMessage(client.ModelGPT, "for three")
	exec(m, cmd)

	st := m.State()
	assert.Equal(t, int64(5), st.Active)
	require.Len(t, st.Messages, 1)
	assert.True(t, st.Messages[0].Pending(), "reply for 3 must not fill a message in 5")
	assert.Contains(t, st.KnownIDs, int64(3))
}

func TestHistoryReply_AfterSwitchIsDiscarded(t *testing.T) {
	gw := &fakeGateway{histories: map[int64][]client.Message{
		3: {{Prompt: "old", Response: "three", ConversationNumber: 3}},
		5: {{Prompt: "new", Response: "five", ConversationNumber: 5}},
	}}
	m := newMachine(gw)

	stale := m.Select(3)
	fresh := m.Select(5)
	exec(m, fresh)
	exec(m, stale)

	st := m.State()
	assert.Equal(t, int64(5), st.Active)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "five", st.Messages[0].Response)
	assert.False(t, st.Loading)
}

func TestHistoryReply_ReselectSameIDAfterAway(t *testing.T) {
	gw := &fakeGateway{histories: map[int64][]client.Message{
		3: {{Prompt: "p", Response: "r", ConversationNumber: 3}},
	}}
	m := newMachine(gw)

	stale := m.Select(3)
	m.Clear()
	fresh := m.Select(3)

	exec(m, stale)
	assert.False(t, m.State().MessagesLoaded, "superseded fetch must not mark the list loaded")
	exec(m, fresh)
	assert.True(t, m.State().MessagesLoaded)
	assert.Len(t, m.State().Messages, 1)
}

func TestStartReply_AfterSwitchStillSendsButDoesNotActivate(t *testing.T) {
	gw := &fakeGateway{nextID: 12}
	m := newMachine(gw)

	cmd, err := m.Send(client.ModelGPT, "hello")
	require.NoError(t, err)
	m.SelectConversation(3)
	exec(m, cmd)

	st := m.State()
	assert.Equal(t, int64(3), st.Active)
	assert.Empty(t, st.Messages)
	require.Len(t, gw.sends, 1)
	assert.Equal(t, int64(12), gw.sends[0].ConversationNumber)
	assert.Contains(t, st.KnownIDs, int64(12))
}

func TestSend_ClearWhileStartingDropsEarlierPrompt(t *testing.T) {
	gw := &fakeGateway{nextID: 9}
	m := newMachine(gw)

	start, err := m.Send(client.ModelGPT, "before clear")
	require.NoError(t, err)
	m.Clear()
	again, err := m.Send(client.ModelGPT, "after clear")
	require.NoError(t, err)
	assert.Nil(t, again)

	exec(m, start)

	assert.Equal(t, 1, gw.starts)
	require.Len(t, gw.sends, 2)
	st := m.State()
	assert.Equal(t, int64(9), st.Active)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "after clear", st.Messages[0].Prompt)
	assert.Equal(t, "re: after clear", st.Messages[0].Response)
}

// ---------------------------------------------------------------------------
// Reset
// ---------------------------------------------------------------------------

func TestReset_NextUserStartsOwnConversation(t *testing.T) {
	gw := &fakeGateway{nextID: 42}
	m := newMachine(gw)

	previous, err := m.Send(client.ModelGPT, "from the first user")
	require.NoError(t, err)
	started := previous()

	m.Reset()
	assert.False(t, m.Starting())

	gw.nextID = 7
	fresh, err := m.Send(client.ModelClaude, "from the second user")
	require.NoError(t, err)
	require.NotNil(t, fresh, "the second user's send must start a conversation")

	assert.Nil(t, m.Update(started))
	assert.Zero(t, m.State().Active)
	assert.True(t, m.Starting())

	exec(m, fresh)

	st := m.State()
	assert.Equal(t, int64(7), st.Active)
	assert.Equal(t, []int64{7}, st.KnownIDs)
	require.Len(t, gw.sends, 1)
	assert.Equal(t, int64(7), gw.sends[0].ConversationNumber)
	assert.Equal(t, "from the second user", gw.sends[0].Prompt)
	require.Len(t, st.Messages, 1)
	assert.False(t, st.Messages[0].Pending())
}

func TestReset_DiscardsResultsInFlight(t *testing.T) {
	tests := []struct {
		name  string
		gw    *fakeGateway
		issue func(m *Machine) tea.Cmd
	}{
		{
			name:  "start",
			gw:    &fakeGateway{nextID: 42},
			issue: func(m *Machine) tea.Cmd { return m.StartConversation() },
		},
		{
			name:  "start failure",
			gw:    &fakeGateway{startErr: gatewayErr(client.OpStart, "boom")},
			issue: func(m *Machine) tea.Cmd { return m.StartConversation() },
		},
		{
			name:  "list",
			gw:    &fakeGateway{ids: []int64{42, 43}},
			issue: func(m *Machine) tea.Cmd { return m.ListConversations() },
		},
		{
			name:  "history",
			gw:    &fakeGateway{histories: map[int64][]client.Message{42: {{Prompt: "p", Response: "r"}}}},
			issue: func(m *Machine) tea.Cmd { return m.Select(42) },
		},
		{
			name: "send reply",
			gw:   &fakeGateway{},
			issue: func(m *Machine) tea.Cmd {
				m.SelectConversation(42)
				return m.SendMessage(client.ModelGPT, "mine", 42)
			},
		},
		{
			name: "send error",
			gw:   &fakeGateway{sendErr: gatewayErr(client.OpSend, "Rate limit reached for today")},
			issue: func(m *Machine) tea.Cmd {
				m.SelectConversation(42)
				return m.SendMessage(client.ModelGPT, "mine", 42)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine(tt.gw)
			stale := tt.issue(m)()

			m.Reset()
			m.SelectConversation(5)
			m.AddOptimisticMessage(client.ModelGPT, "mine")
			before := m.State()

			assert.Nil(t, m.Update(stale))
			if diff := cmp.Diff(before, m.State()); diff != "" {
				t.Errorf("state changed by a result from before the reset (-want +got):\n%s", diff)
			}
			assert.False(t, m.Starting())
			assert.False(t, m.State().RateLimited())
		})
	}
}

// ---------------------------------------------------------------------------
// Clear / placeholder
// ---------------------------------------------------------------------------

func TestClear(t *testing.T) {
	gw := &fakeGateway{ids: []int64{1, 2}}
	m := newMachine(gw)
	exec(m, m.ListConversations())
	m.SelectConversation(2)
	m.AddOptimisticMessage(client.ModelGPT, "x")

	m.Clear()
	st := m.State()
	assert.False(t, st.HasActive())
	assert.Empty(t, st.Messages)
	assert.Equal(t, []int64{1, 2}, st.KnownIDs)
	assert.True(t, st.ShowPlaceholder())
}

func TestShowPlaceholder(t *testing.T) {
	assert.True(t, State{MessagesLoaded: true}.ShowPlaceholder())
	assert.False(t, State{MessagesLoaded: false}.ShowPlaceholder())
	assert.False(t, State{MessagesLoaded: true, JustStarted: true}.ShowPlaceholder())
	assert.False(t, State{MessagesLoaded: true, Messages: []client.Message{{Prompt: "x"}}}.ShowPlaceholder())
}

func TestReset(t *testing.T) {
	gw := &fakeGateway{ids: []int64{1}}
	m := newMachine(gw)
	exec(m, m.ListConversations())
	m.SelectConversation(1)

	m.Reset()
	if diff := cmp.Diff(State{MessagesLoaded: true}, m.State()); diff != "" {
		t.Errorf("state after reset (-want +got):\n%s", diff)
	}
}
