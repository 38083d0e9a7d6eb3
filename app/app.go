package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/miosa/chatai/auth"
	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/conversation"
	"github.com/miosa/chatai/model"
	"github.com/miosa/chatai/msg"
	"github.com/miosa/chatai/session"
	"github.com/miosa/chatai/style"
	"github.com/miosa/chatai/tokens"
)

const (
	tickInterval = time.Second
	sidebarWidth = 26
	limitReason  = "Daily message limit reached"
)

// Commands lists the slash commands offered for Tab completion.
var Commands = []string{
	"/new", "/model", "/conversations", "/open", "/reload",
	"/logout", "/help", "/quit", "/exit",
}

// inputTokens carries the token count of the input buffer, computed off the
// Update goroutine.
type inputTokens struct {
	text string
	n    int
}

// Deps are the collaborators the TUI drives.
type Deps struct {
	Auth         *auth.Machine
	Conv         *conversation.Machine
	Store        session.Store
	DefaultModel client.Model
	Version      string
}

// Model is the root Bubble Tea model. It routes between the auth forms and
// the chat screen and keeps the view components in sync with the machines.
type Model struct {
	auth  *auth.Machine
	conv  *conversation.Machine
	store session.Store

	login   model.FormModel
	signup  model.FormModel
	chat    model.ChatModel
	sidebar model.SidebarModel
	input   model.InputModel
	status  model.StatusModel
	picker  model.PickerModel
	toasts  model.ToastsModel
	header  model.HeaderModel
	help    help.Model

	state       State
	selected    client.Model
	showSidebar bool
	showHelp    bool
	confirmQuit bool
	keys        KeyMap
	width       int
	height      int

	// boot runs from Init: a token refresh when only the refresh token
	// survived, or the first conversation list.
	boot tea.Cmd
}

// New builds the root model. A stored session opens straight into chat.
func New(d Deps) Model {
	selected := d.DefaultModel
	if !selected.Valid() {
		selected = client.ModelGPT
	}
	m := Model{
		auth:        d.Auth,
		conv:        d.Conv,
		store:       d.Store,
		login:       model.NewLoginForm(),
		signup:      model.NewSignupForm(),
		chat:        model.NewChat(80, 20),
		sidebar:     model.NewSidebar(),
		input:       model.NewInput(),
		status:      model.NewStatus(),
		picker:      model.NewPicker(),
		toasts:      model.NewToasts(),
		header:      model.NewHeader(d.Version),
		help:        help.New(),
		selected:    selected,
		showSidebar: true,
		keys:        DefaultKeyMap(),
		width:       80,
		height:      24,
	}
	m.input.SetCommands(Commands)
	m.status.SetBindings(m.keys.ShortHelp())

	switch {
	case d.Store.AccessToken() != "":
		m.state = StateChat
		m.input.Focus()
		m.boot = m.conv.ListConversations()
	case d.Store.RefreshToken() != "":
		m.state = StateLogin
		m.login.Focus()
		m.boot, _ = m.auth.Refresh()
	default:
		m.state = StateLogin
		m.login.Focus()
	}
	m.sync()
	return m
}

// State reports the current screen.
func (m Model) State() State { return m.state }

// Selected reports the model new prompts go to.
func (m Model) Selected() client.Model { return m.selected }

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.WindowSize(), m.boot)
}

func (m Model) Update(rawMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := rawMsg.(type) {
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
		m.layout()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(v)
	case msg.TickMsg:
		m.toasts.Tick(v.Time)
		return m, tickCmd()
	case msg.FormSubmitted:
		return m.submitForm(v)
	case msg.SubmitInput:
		return m.submitInput(v.Text)
	case auth.Result:
		return m.handleAuth(v)
	case conversation.Outcome:
		return m.handleOutcome(v)
	case session.Changed:
		return m.handleSessionChanged(v)
	case model.SidebarChoice:
		return m.openConversation(v.ID)
	case model.PickerChoice:
		m.state = StateChat
		if v.Model != m.selected {
			m.selected = v.Model
			m.toasts.Add("Now chatting with "+v.Model.DisplayName(), model.ToastInfo)
		}
		m.sync()
		return m, m.input.Focus()
	case model.PickerCancel:
		m.state = StateChat
		return m, m.input.Focus()
	case inputTokens:
		if v.text == m.input.Value() {
			m.status.SetTokens(v.n)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(v)
		return m, cmd
	}

	// Cursor blink and other component-internal messages.
	var cmd tea.Cmd
	switch m.state {
	case StateChat:
		m.input, cmd = m.input.Update(rawMsg)
	case StateLogin:
		m.login, cmd = m.login.Update(rawMsg)
	case StateSignup:
		m.signup, cmd = m.signup.Update(rawMsg)
	}
	return m, cmd
}

func (m Model) View() string {
	var body string
	switch m.state {
	case StateLogin:
		body = m.centered(m.login.View())
	case StateSignup:
		body = m.centered(m.signup.View())
	default:
		body = m.chatView()
	}
	if m.toasts.Len() > 0 {
		body = m.toasts.View(m.width) + "\n" + body
	}
	return body
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmQuit {
		if key.Matches(k, m.keys.Quit) {
			return m, tea.Quit
		}
		m.confirmQuit = false
		return m, nil
	}
	if key.Matches(k, m.keys.Quit) && (m.state != StateChat || m.input.Value() == "") {
		m.confirmQuit = true
		return m, nil
	}

	switch m.state {
	case StateLogin, StateSignup:
		return m.handleFormKey(k)
	case StatePicker:
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(k)
		return m, cmd
	case StateBrowse:
		return m.handleBrowseKey(k)
	}
	return m.handleChatKey(k)
}

func (m Model) handleFormKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(k, m.keys.SwitchForm) {
		return m.switchForm()
	}
	var cmd tea.Cmd
	if m.state == StateLogin {
		m.login, cmd = m.login.Update(k)
	} else {
		m.signup, cmd = m.signup.Update(k)
	}
	return m, cmd
}

func (m Model) handleBrowseKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(k, m.keys.Escape) || key.Matches(k, m.keys.Conversations) {
		m.state = StateChat
		m.sidebar.Blur()
		return m, m.input.Focus()
	}
	var cmd tea.Cmd
	m.sidebar, cmd = m.sidebar.Update(k)
	return m, cmd
}

func (m Model) handleChatKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(k, m.keys.Quit):
		m.input.Reset()
		m.status.SetTokens(0)
		return m, nil
	case key.Matches(k, m.keys.QuitEOF):
		if m.input.Value() == "" {
			return m, tea.Quit
		}
	case key.Matches(k, m.keys.Escape):
		if m.showHelp {
			m.showHelp = false
			m.layout()
			return m, nil
		}
		m.input.Reset()
		m.status.SetTokens(0)
		return m, nil
	case key.Matches(k, m.keys.NewChat):
		return m.openConversation(0)
	case key.Matches(k, m.keys.PickModel):
		return m.openPicker()
	case key.Matches(k, m.keys.Conversations):
		return m.browse()
	case key.Matches(k, m.keys.Reload):
		return m.reload()
	case key.Matches(k, m.keys.Logout):
		return m.logout("Signed out", model.ToastInfo)
	case key.Matches(k, m.keys.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil
	case key.Matches(k, m.keys.PageUp), key.Matches(k, m.keys.PageDown):
		var cmd tea.Cmd
		m.chat, cmd = m.chat.Update(k)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	if text := m.input.Value(); text != before {
		return m, tea.Batch(cmd, countTokens(text))
	}
	return m, cmd
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func (m *Model) activeForm() *model.FormModel {
	if m.state == StateSignup {
		return &m.signup
	}
	return &m.login
}

func (m Model) switchForm() (tea.Model, tea.Cmd) {
	m.auth.ClearError()
	m.activeForm().Blur()
	if m.state == StateLogin {
		m.state = StateSignup
	} else {
		m.state = StateLogin
	}
	form := m.activeForm()
	form.SetErrors(nil, "")
	return m, form.Focus()
}

func (m Model) submitForm(v msg.FormSubmitted) (tea.Model, tea.Cmd) {
	var (
		cmd tea.Cmd
		err error
	)
	switch v.Kind {
	case msg.FormLogin:
		cmd, err = m.auth.Login(v.Values["username"], v.Values["password"])
	case msg.FormSignup:
		cmd, err = m.auth.Signup(v.Values["username"], v.Values["email"], v.Values["password"])
	}
	form := m.activeForm()
	if err != nil {
		var verr *auth.ValidationError
		if errors.As(err, &verr) {
			form.SetErrors(verr.Fields, "")
		} else {
			form.SetErrors(nil, client.ErrorMessage(err))
		}
		return m, nil
	}
	form.SetErrors(nil, "")
	form.SetBusy(true)
	return m, cmd
}

func (m Model) handleAuth(res auth.Result) (tea.Model, tea.Cmd) {
	m.auth.Update(res)
	m.login.SetBusy(false)
	m.signup.SetBusy(false)
	if res.Err != nil {
		if res.Op == client.OpRefresh {
			return m.logout("Session expired. Please log in again.", model.ToastWarning)
		}
		m.activeForm().SetErrors(nil, m.auth.State().Error)
		return m, nil
	}
	if m.state.Private() {
		return m, nil
	}
	if !res.Authenticated {
		if res.Op != client.OpRefresh {
			m.activeForm().SetErrors(nil, res.Op.Fallback())
		}
		return m, nil
	}
	return m.enterChat()
}

func (m Model) handleSessionChanged(v session.Changed) (tea.Model, tea.Cmd) {
	switch {
	case !v.Session.LoggedIn() && m.state.Private():
		log.Info().Msg("session removed outside the app")
		return m.logout("Signed out", model.ToastInfo)
	case v.Session.LoggedIn() && !m.state.Private() && !m.auth.State().Loading():
		log.Info().Msg("session created outside the app")
		return m.enterChat()
	}
	return m, nil
}

func (m Model) enterChat() (tea.Model, tea.Cmd) {
	m.state = StateChat
	m.conv.Reset()
	m.login.Reset()
	m.signup.Reset()
	m.login.Blur()
	m.signup.Blur()
	m.input.Reset()
	m.status.SetTokens(0)
	m.sync()
	m.layout()
	return m, tea.Batch(m.conv.ListConversations(), m.input.Focus())
}

// logout clears the session and every per-user view, then shows the login
// form with reason as a toast.
func (m Model) logout(reason string, level model.ToastLevel) (tea.Model, tea.Cmd) {
	if err := m.auth.Logout(); err != nil {
		log.Error().Err(err).Msg("logout")
		m.toasts.Add(err.Error(), model.ToastError)
	}
	m.conv.Reset()
	m.state = StateLogin
	m.showHelp = false
	m.sidebar.Blur()
	m.picker.Clear()
	m.input.Reset()
	m.input.Blur()
	m.signup.Reset()
	m.login.Reset()
	m.toasts.Add(reason, level)
	m.sync()
	return m, m.login.Focus()
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

func (m Model) handleOutcome(o conversation.Outcome) (tea.Model, tea.Cmd) {
	if err := o.Failure(); client.IsAuthFailure(err) && m.conv.Current(o) {
		m.conv.Update(o)
		if !m.state.Private() {
			return m, nil
		}
		return m.logout(client.ErrorMessage(err), model.ToastWarning)
	}
	cmd := m.conv.Update(o)
	m.sync()
	if m.chat.Thinking() {
		cmd = tea.Batch(cmd, m.chat.Tick())
	}
	return m, cmd
}

func (m Model) openConversation(id int64) (tea.Model, tea.Cmd) {
	if m.state == StateBrowse {
		m.state = StateChat
		m.sidebar.Blur()
	}
	var cmd tea.Cmd
	if id == 0 {
		m.conv.Clear()
	} else {
		cmd = m.conv.Select(id)
	}
	m.sync()
	return m, tea.Batch(cmd, m.chat.Tick(), m.input.Focus())
}

func (m Model) browse() (tea.Model, tea.Cmd) {
	m.state = StateBrowse
	m.showSidebar = true
	m.input.Blur()
	m.sidebar.Focus()
	m.layout()
	return m, m.conv.ListConversations()
}

func (m Model) reload() (tea.Model, tea.Cmd) {
	st := m.conv.State()
	cmds := []tea.Cmd{m.conv.ListConversations()}
	if st.HasActive() {
		cmds = append(cmds, m.conv.FetchHistory(st.Active))
	}
	m.sync()
	return m, tea.Batch(cmds...)
}

func (m Model) openPicker() (tea.Model, tea.Cmd) {
	m.state = StatePicker
	m.input.Blur()
	m.picker.SetItems(model.PickerItems(m.selected))
	return m, nil
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		m.input.Submit(text)
		m.status.SetTokens(0)
		return m.runCommand(text)
	}

	cmd, err := m.conv.Send(m.selected, text)
	switch {
	case errors.Is(err, client.ErrNoSession):
		return m.logout(client.ErrorMessage(err), model.ToastWarning)
	case errors.Is(err, conversation.ErrRateLimited):
		m.toasts.Add(limitReason, model.ToastWarning)
		m.sync()
		return m, nil
	case err != nil:
		m.toasts.Add(err.Error(), model.ToastWarning)
		return m, nil
	}
	m.input.Submit(text)
	m.status.SetTokens(0)
	m.sync()
	return m, tea.Batch(cmd, m.chat.Tick())
}

func (m Model) runCommand(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/new":
		return m.openConversation(0)
	case "/model":
		if arg == "" {
			return m.openPicker()
		}
		mdl, err := client.ParseModel(arg)
		if err != nil {
			m.toasts.Add(err.Error(), model.ToastWarning)
			return m, nil
		}
		return m.Update(model.PickerChoice{Model: mdl})
	case "/conversations":
		return m.browse()
	case "/open":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			m.toasts.Add("Usage: /open <conversation number>", model.ToastWarning)
			return m, nil
		}
		return m.openConversation(id)
	case "/reload":
		return m.reload()
	case "/logout":
		return m.logout("Signed out", model.ToastInfo)
	case "/help":
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil
	}
	m.toasts.Add("Unknown command: "+name, model.ToastWarning)
	return m, nil
}

// sync pushes the machine state into every view component.
func (m *Model) sync() {
	st := m.conv.State()
	m.chat.SetState(st, m.selected)
	m.sidebar.SetItems(st.KnownIDs, st.Active)
	m.sidebar.SetLoading(st.Loading)
	m.header.SetModel(m.selected)
	m.header.SetConversation(st.Active)
	m.header.SetLimited(st.RateLimited())
	m.status.SetModel(m.selected)
	m.status.SetConversation(st.Active)
	m.status.SetActivity(st.Loading, st.Pending())
	m.input.SetPlaceholder(fmt.Sprintf("Message %s...", m.selected.DisplayName()))
	m.input.SetDisabled(st.RateLimited(), limitReason)
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func (m *Model) layout() {
	main := m.mainWidth()
	m.login.SetWidth(m.width)
	m.signup.SetWidth(m.width)
	m.sidebar.SetSize(sidebarWidth, max(m.height-1, 3))
	m.header.SetWidth(main)
	m.input.SetWidth(main)
	m.status.SetWidth(m.width)
	m.picker.SetWidth(main)
	m.help.Width = main
	m.chat.SetSize(main, m.chatHeight())
}

func (m Model) mainWidth() int {
	if m.sidebarVisible() {
		return max(m.width-sidebarWidth-1, 20)
	}
	return m.width
}

func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.width >= 70
}

// chatHeight is what remains after the header, divider, input and status
// lines.
func (m Model) chatHeight() int {
	used := 4
	if m.header.View() != "" {
		used += lipgloss.Height(m.header.View()) - 1
	}
	if m.showHelp {
		used += lipgloss.Height(m.help.FullHelpView(m.keys.FullHelp()))
	}
	if m.conv.State().Error != "" {
		used++
	}
	return max(m.height-used, 3)
}

func (m Model) chatView() string {
	main := m.mainWidth()
	sections := []string{m.header.View(), m.chat.View()}
	if e := m.conv.State().Error; e != "" && !m.conv.State().RateLimited() {
		sections = append(sections, style.ErrorText.Render("  "+e))
	}
	if m.state == StatePicker {
		sections = append(sections, m.picker.View())
	}
	if m.showHelp {
		sections = append(sections, m.help.FullHelpView(m.keys.FullHelp()))
	}
	sections = append(sections, style.Divider(main), m.input.View())
	column := lipgloss.NewStyle().Width(main).Render(strings.Join(sections, "\n"))

	if m.sidebarVisible() {
		column = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), " ", column)
	}
	out := column + "\n" + m.status.View()
	if m.confirmQuit {
		out += "\n  Press Ctrl+C again to quit, or any key to cancel."
	}
	return out
}

func (m Model) centered(s string) string {
	if m.confirmQuit {
		s += "\n\n  Press Ctrl+C again to quit, or any key to cancel."
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return msg.TickMsg{Time: t} })
}

func countTokens(text string) tea.Cmd {
	return func() tea.Msg {
		return inputTokens{text: text, n: tokens.Count(text)}
	}
}
