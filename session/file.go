package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// FileStore persists each token as its own file inside a profile directory:
//
//	<dir>/access_token
//	<dir>/refresh_token
//
// Reads are served from an in-memory copy that every write updates before
// returning, so a write is visible to the next read without touching disk.
type FileStore struct {
	dir string

	mu      sync.RWMutex
	current Session
}

// OpenFileStore creates dir if needed and loads any tokens already there.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	s := &FileStore{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the profile directory backing the store.
func (s *FileStore) Dir() string { return s.dir }

// Reload re-reads both token files. A missing file reads as an empty token.
func (s *FileStore) Reload() error {
	access, err := readToken(filepath.Join(s.dir, AccessTokenKey))
	if err != nil {
		return err
	}
	refresh, err := readToken(filepath.Join(s.dir, RefreshTokenKey))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = Session{AccessToken: access, RefreshToken: refresh}
	s.mu.Unlock()
	return nil
}

func (s *FileStore) Set(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeToken(filepath.Join(s.dir, AccessTokenKey), access); err != nil {
		return err
	}
	if err := writeToken(filepath.Join(s.dir, RefreshTokenKey), refresh); err != nil {
		return err
	}
	s.current = Session{AccessToken: access, RefreshToken: refresh}
	return nil
}

func (s *FileStore) SetAccessToken(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeToken(filepath.Join(s.dir, AccessTokenKey), access); err != nil {
		return err
	}
	s.current.AccessToken = access
	return nil
}

func (s *FileStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

func (s *FileStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, name := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	s.current = Session{}
	return errors.Join(errs...)
}

// Watch reports token changes made outside this process. fn runs on the
// watcher goroutine with the reloaded session whenever it differs from the
// in-memory copy; writes made through s never trigger it. The watcher stops
// when ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context, fn func(Session)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create session watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				if name != AccessTokenKey && name != RefreshTokenKey {
					continue
				}
				before := Snapshot(s)
				if err := s.Reload(); err != nil {
					log.Warn().Err(err).Msg("session reload failed")
					continue
				}
				if after := Snapshot(s); after != before {
					log.Debug().Bool("logged_in", after.LoggedIn()).Msg("session changed on disk")
					fn(after)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("session watcher error")
			}
		}
	}()
	return nil
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeToken replaces path atomically; an empty token removes the file.
func writeToken(path, token string) error {
	if token == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}
