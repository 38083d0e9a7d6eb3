// Package auth drives login, signup, token refresh and logout against the
// Gateway and records the outcome in the session store.
package auth

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/session"
)

// Status of the most recent auth request.
type Status int

const (
	Idle Status = iota
	Pending
	Fulfilled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Gateway is the subset of the Gateway client auth needs.
type Gateway interface {
	Login(ctx context.Context, req client.LoginRequest) (*client.TokenResponse, error)
	Signup(ctx context.Context, req client.SignupRequest) (*client.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*client.TokenResponse, error)
}

// Result is delivered when an auth request completes. Authenticated is true
// when the session store holds an access token afterwards.
type Result struct {
	Op            client.Op
	Authenticated bool
	Err           error
}

// State is a snapshot of the machine.
type State struct {
	Status Status
	Op     client.Op
	Error  string
	Fields map[string]string
}

// Loading reports whether a request is outstanding.
func (s State) Loading() bool { return s.Status == Pending }

// Machine is the auth state machine. Like the conversation machine it is
// driven from the Bubble Tea Update goroutine.
type Machine struct {
	gw    Gateway
	store session.Store
	ctx   context.Context

	state State
}

// New returns an idle machine.
func New(ctx context.Context, gw Gateway, store session.Store) *Machine {
	return &Machine{gw: gw, store: store, ctx: ctx}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Authenticated reports whether the session store holds an access token.
func (m *Machine) Authenticated() bool { return m.store.AccessToken() != "" }

// Login validates the credentials and returns the command that submits
// them. A validation failure is returned as *ValidationError and nothing is
// sent.
func (m *Machine) Login(username, password string) (tea.Cmd, error) {
	form := LoginForm{Username: username, Password: password}
	if err := m.validate(form.Validate()); err != nil {
		return nil, err
	}
	m.begin(client.OpLogin)
	gw, store, ctx := m.gw, m.store, m.ctx
	return func() tea.Msg {
		resp, err := gw.Login(ctx, client.LoginRequest{Username: form.Username, Password: form.Password})
		return storeTokens(store, client.OpLogin, resp, err)
	}, nil
}

// Signup validates the form and returns the command that submits it.
func (m *Machine) Signup(username, email, password string) (tea.Cmd, error) {
	form := SignupForm{Username: username, Email: email, Password: password}
	if err := m.validate(form.Validate()); err != nil {
		return nil, err
	}
	m.begin(client.OpSignup)
	gw, store, ctx := m.gw, m.store, m.ctx
	return func() tea.Msg {
		resp, err := gw.Signup(ctx, client.SignupRequest{Username: form.Username, Email: form.Email, Password: form.Password})
		return storeTokens(store, client.OpSignup, resp, err)
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token. The
// refresh token itself is kept.
func (m *Machine) Refresh() (tea.Cmd, error) {
	refreshToken := m.store.RefreshToken()
	if refreshToken == "" {
		return nil, client.ErrNoSession
	}
	m.begin(client.OpRefresh)
	gw, store, ctx := m.gw, m.store, m.ctx
	return func() tea.Msg {
		resp, err := gw.Refresh(ctx, refreshToken)
		if err != nil {
			return Result{Op: client.OpRefresh, Err: err}
		}
		if err := store.SetAccessToken(resp.AccessToken); err != nil {
			return Result{Op: client.OpRefresh, Err: fmt.Errorf("save session: %w", err)}
		}
		return Result{Op: client.OpRefresh, Authenticated: resp.AccessToken != ""}
	}, nil
}

// Logout clears the session and the machine.
func (m *Machine) Logout() error {
	m.state = State{}
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	log.Info().Msg("logged out")
	return nil
}

// ClearError drops any error shown by a form, e.g. when switching screens.
func (m *Machine) ClearError() {
	m.state.Error = ""
	m.state.Fields = nil
}

// Update applies a Result. It reports whether msg was one.
func (m *Machine) Update(msg tea.Msg) bool {
	res, ok := msg.(Result)
	if !ok {
		return false
	}
	m.state.Op = res.Op
	if res.Err != nil {
		m.state.Status = Rejected
		m.state.Error = client.ErrorMessage(res.Err)
		log.Warn().Err(res.Err).Str("op", string(res.Op)).Msg("auth request failed")
		return true
	}
	m.state.Status = Fulfilled
	m.state.Error = ""
	log.Info().Str("op", string(res.Op)).Bool("authenticated", res.Authenticated).Msg("auth request succeeded")
	return true
}

func (m *Machine) validate(err error) error {
	if err == nil {
		m.state.Fields = nil
		return nil
	}
	err = asValidationError(err)
	if verr, ok := err.(*ValidationError); ok {
		m.state.Fields = verr.Fields
	}
	return err
}

func (m *Machine) begin(op client.Op) {
	m.state = State{Status: Pending, Op: op}
}

func storeTokens(store session.Store, op client.Op, resp *client.TokenResponse, err error) tea.Msg {
	if err != nil {
		return Result{Op: op, Err: err}
	}
	if err := store.Set(resp.AccessToken, resp.RefreshToken); err != nil {
		return Result{Op: op, Err: fmt.Errorf("save session: %w", err)}
	}
	return Result{Op: op, Authenticated: resp.AccessToken != ""}
}
