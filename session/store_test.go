package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// FileStore
// ---------------------------------------------------------------------------

func TestFileStore_SetPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("access-1", "refresh-1"))

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "access-1", reopened.AccessToken())
	assert.Equal(t, "refresh-1", reopened.RefreshToken())
}

func TestFileStore_FilesAreOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", "r"))

	for _, name := range []string{AccessTokenKey, RefreshTokenKey} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}
}

func TestFileStore_SetAccessTokenKeepsRefresh(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Set("old", "refresh"))
	require.NoError(t, s.SetAccessToken("new"))

	assert.Equal(t, "new", s.AccessToken())
	assert.Equal(t, "refresh", s.RefreshToken())
}

func TestFileStore_ClearRemovesBoth(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("a", "r"))
	require.NoError(t, s.Clear())

	assert.Empty(t, s.AccessToken())
	assert.Empty(t, s.RefreshToken())
	_, err = os.Stat(filepath.Join(dir, AccessTokenKey))
	assert.True(t, os.IsNotExist(err))

	// Clearing an empty store is fine.
	require.NoError(t, s.Clear())
}

func TestFileStore_MissingFilesReadEmpty(t *testing.T) {
	s, err := OpenFileStore(filepath.Join(t.TempDir(), "profiles", "work"))
	require.NoError(t, err)
	assert.False(t, Snapshot(s).LoggedIn())
}

func TestFileStore_WatchSeesExternalWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []Session
	)
	require.NoError(t, s.Watch(ctx, func(got Session) {
		mu.Lock()
		seen = append(seen, got)
		mu.Unlock()
	}))

	// Another process logs in.
	require.NoError(t, os.WriteFile(filepath.Join(dir, AccessTokenKey), []byte("from-elsewhere"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1].AccessToken == "from-elsewhere"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "from-elsewhere", s.AccessToken())
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore("", "")
	assert.False(t, Snapshot(s).LoggedIn())

	require.NoError(t, s.Set("a", "r"))
	assert.Equal(t, Session{AccessToken: "a", RefreshToken: "r"}, Snapshot(s))

	require.NoError(t, s.SetAccessToken("b"))
	assert.Equal(t, "r", s.RefreshToken())

	require.NoError(t, s.Clear())
	assert.Equal(t, Session{}, Snapshot(s))
}

// ---------------------------------------------------------------------------
// Claims
// ---------------------------------------------------------------------------

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("not-the-server-key"))
	require.NoError(t, err)

	c, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestParseClaims_Garbage(t *testing.T) {
	_, err := ParseClaims("not-a-jwt")
	assert.Error(t, err)
}
