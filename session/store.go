// Package session holds the access/refresh token pair that identifies the
// user to the Gateway.
//
// Every component that builds an authenticated request receives a Store at
// construction time and reads the tokens when the request is built, never
// earlier, so a token written by the refresh flow is picked up by the next
// request.
package session

import "sync"

// File names (and keys) of the two persisted tokens.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Session is a point-in-time copy of both tokens.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// LoggedIn reports whether the session can authenticate a request.
func (s Session) LoggedIn() bool { return s.AccessToken != "" }

// Store is the durable home of the session tokens.
type Store interface {
	// Set persists both tokens, overwriting existing values.
	Set(access, refresh string) error
	// SetAccessToken replaces the access token and keeps the refresh token.
	SetAccessToken(access string) error
	AccessToken() string
	RefreshToken() string
	// Clear removes both tokens.
	Clear() error
}

// Changed is delivered to the TUI when the tokens were rewritten by another
// process (a login or logout in a second terminal).
type Changed struct {
	Session Session
}

// Snapshot returns both tokens of s.
func Snapshot(s Store) Session {
	return Session{AccessToken: s.AccessToken(), RefreshToken: s.RefreshToken()}
}

// MemoryStore keeps the tokens in process memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	current Session
}

// NewMemoryStore returns a store seeded with the given tokens.
func NewMemoryStore(access, refresh string) *MemoryStore {
	return &MemoryStore{current: Session{AccessToken: access, RefreshToken: refresh}}
}

func (s *MemoryStore) Set(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{AccessToken: access, RefreshToken: refresh}
	return nil
}

func (s *MemoryStore) SetAccessToken(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.AccessToken = access
	return nil
}

func (s *MemoryStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

func (s *MemoryStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{}
	return nil
}
