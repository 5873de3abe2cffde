package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps each blob in its own file below a base directory.
type FileStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{baseDir: strings.TrimSpace(dir)}
}

// NewFileStoreForPath splits a token file path into a store and the key that addresses it.
func NewFileStoreForPath(path string) (*FileStore, string) {
	path = filepath.Clean(strings.TrimSpace(path))
	return NewFileStore(filepath.Dir(path)), filepath.Base(path)
}

// Load reads the blob stored under key.
func (s *FileStore) Load(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("file store: read %s: %w", path, err)
	}
	return string(data), nil
}

// Save writes blob through a temporary file so readers never see a partial token.
func (s *FileStore) Save(ctx context.Context, key, blob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("file store: create dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: chmod temp file: %w", err)
	}
	if _, err = tmp.WriteString(blob); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("file store: sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("file store: close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("file store: replace %s: %w", path, err)
	}
	return nil
}

// Delete removes the file for key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: delete %s: %w", path, err)
	}
	return nil
}

// Location returns the absolute file path for key.
func (s *FileStore) Location(key string) string {
	path, err := s.resolve(key)
	if err != nil {
		return ""
	}
	return path
}

func (s *FileStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("file store: key is required")
	}
	if filepath.IsAbs(key) {
		return filepath.Clean(key), nil
	}
	if s.baseDir == "" {
		return "", fmt.Errorf("file store: directory not configured")
	}
	path := filepath.Join(s.baseDir, key)
	if rel, err := filepath.Rel(s.baseDir, path); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("file store: key %q escapes %s", key, s.baseDir)
	}
	return path, nil
}
