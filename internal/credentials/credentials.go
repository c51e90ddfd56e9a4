// Package credentials provides the access token the client presents to the hub.
//
// Every source is read at dial time, so a token refreshed by the rest of the
// application is used by the next connect or reconnect attempt.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"notifier/internal/logging"
)

var ErrNoPath = errors.New("token file path is empty")

// Static always returns the same token
type Static string

func (s Static) Token() string { return string(s) }

// Env reads an environment variable on every call
type Env string

func (e Env) Token() string { return strings.TrimSpace(os.Getenv(string(e))) }

// FileStore keeps the token in a file shared with the rest of the application
// FUNCTIONAL DISCOVERY: A missing file means logged out, not an error
type FileStore struct {
	path   string
	logger *logging.Logger

	mu    sync.RWMutex
	token string
}

// NewFileStore loads the token currently stored at path
func NewFileStore(path string, logger *logging.Logger) (*FileStore, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	s := &FileStore{path: path, logger: logging.OrNop(logger).Named("credentials")}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns the cached token
func (s *FileStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

// Reload re-reads the file
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		data, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}
	s.mu.Lock()
	s.token = strings.TrimSpace(string(data))
	s.mu.Unlock()
	return nil
}

// Set stores token, replacing the file atomically
func (s *FileStore) Set(token string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to protect token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
	return nil
}

// Clear removes the stored token
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// Watch reloads the token whenever the file changes until ctx is cancelled
// TECHNICAL DISCOVERY: The directory is watched rather than the file because writers
// replace the file by rename, which drops a watch placed on the old inode
func (s *FileStore) Watch(ctx context.Context, changed func(token string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch token directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !isRelevantChange(event) {
					continue
				}
				before := s.Token()
				if err := s.Reload(); err != nil {
					s.logger.Warn("token reload failed", logging.Fields{"error": err})
					continue
				}
				if after := s.Token(); after != before && changed != nil {
					changed(after)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("token watcher error", logging.Fields{"error": err})
			}
		}
	}()
	return nil
}

func isRelevantChange(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
