package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miosa/chatai/client"
	"github.com/miosa/chatai/config"
	"github.com/miosa/chatai/session"
)

// ---------------------------------------------------------------------------
// drive
// ---------------------------------------------------------------------------

type step int

func TestDrive_FollowsBatchesAndFollowUps(t *testing.T) {
	var seen []step
	emit := func(s step) tea.Cmd { return func() tea.Msg { return s } }

	drive(tea.Batch(emit(1), emit(2)), func(m tea.Msg) tea.Cmd {
		s := m.(step)
		seen = append(seen, s)
		if s == 1 {
			return emit(3)
		}
		return nil
	})
	assert.Equal(t, []step{1, 2, 3}, seen)
}

func TestDrive_NilCommand(t *testing.T) {
	called := false
	drive(nil, func(tea.Msg) tea.Cmd { called = true; return nil })
	assert.False(t, called)
}

// ---------------------------------------------------------------------------
// Commands against a fake Gateway
// ---------------------------------------------------------------------------

// setup points HOME and the Gateway URL at test fixtures and returns the
// profile's session store.
func setup(t *testing.T, h http.Handler) *session.FileStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHATAI_GATEWAY_BASE_URL", srv.URL)

	dir, err := config.ProfileDir("test")
	require.NoError(t, err)
	store, err := session.OpenFileStore(dir)
	require.NoError(t, err)
	return store
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := App("test")
	a.Writer = &out
	a.ErrWriter = &errOut
	err := a.Run(append([]string{"chatai", "--profile", "test", "--no-color"}, args...))
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestConversations_ListsIDs(t *testing.T) {
	store := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []int64{3, 5})
	}))
	require.NoError(t, store.Set("tok", "ref"))

	out, err := run(t, "conversations")
	require.NoError(t, err)
	assert.Equal(t, "Conversation 3\nConversation 5\n", out)
}

func TestConversations_RequiresSession(t *testing.T) {
	setup(t, http.NotFoundHandler())
	_, err := run(t, "conversations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Please log in first.")
}

func TestSend_StartsConversationAndPrintsReply(t *testing.T) {
	store := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/start_conversation":
			writeJSON(w, http.StatusOK, client.StartConversationResponse{ConversationNumber: 12})
		case "/chat/":
			var req client.SendRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(12), req.ConversationNumber)
			assert.Equal(t, client.ModelClaude, req.Model)
			writeJSON(w, http.StatusOK, client.Message{
				Model: req.Model, Prompt: req.Prompt, Response: "Hello back",
				ConversationNumber: 12, Timestamp: "2024-05-01T10:00:00.000Z",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	require.NoError(t, store.Set("tok", "ref"))

	out, err := run(t, "send", "--raw", "-m", "claude", "Hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hello back\n", out)
}

func TestSend_GatewayErrorIsReturned(t *testing.T) {
	store := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, client.ErrorResponse{Message: "Rate limit reached for today"})
	}))
	require.NoError(t, store.Set("tok", "ref"))

	_, err := run(t, "send", "-n", "4", "Hello")
	require.Error(t, err)
	assert.Equal(t, "Rate limit reached for today", err.Error())
}

func TestLogin_StoresTokens(t *testing.T) {
	store := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		writeJSON(w, http.StatusOK, client.TokenResponse{AccessToken: "a1", RefreshToken: "r1"})
	}))

	out, err := run(t, "login", "-u", "ada", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada")

	require.NoError(t, store.Reload())
	assert.Equal(t, "a1", store.AccessToken())
	assert.Equal(t, "r1", store.RefreshToken())
}

func TestLogin_ValidationFailsWithoutRequest(t *testing.T) {
	setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	_, err := run(t, "login", "-u", "ada", "--password", "123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password must be at least 6 characters")
}

func TestLogout_ClearsSession(t *testing.T) {
	store := setup(t, http.NotFoundHandler())
	require.NoError(t, store.Set("tok", "ref"))

	_, err := run(t, "logout")
	require.NoError(t, err)
	require.NoError(t, store.Reload())
	assert.Empty(t, store.AccessToken())
}

func TestConfigInit_WritesDefaults(t *testing.T) {
	setup(t, http.NotFoundHandler())
	path := filepath.Join(t.TempDir(), "chatai.toml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url")

	_, err = run(t, "config", "init", path)
	assert.Error(t, err)
}

func TestLogin_EphemeralWritesNothing(t *testing.T) {
	store := setup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, client.TokenResponse{AccessToken: "a1", RefreshToken: "r1"})
	}))

	_, err := run(t, "--ephemeral", "login", "-u", "ada", "--password", "secret1")
	require.NoError(t, err)

	require.NoError(t, store.Reload())
	assert.Empty(t, store.AccessToken())
}
