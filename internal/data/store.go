// Package data provides atomic, merge-on-load JSON state persistence
// shared by every stateful component (tracker, adapter, optimizer,
// planner, budget tracker).
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store persists a single JSON document at a fixed path, guarded by an
// in-process mutex and written atomically (temp file + rename) so a
// crash mid-write never corrupts the previous snapshot.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	path   string
	perm   os.FileMode
}

// New creates a Store backed by the given file path. The parent
// directory is created if missing.
func New(logger *zap.Logger, path string, perm os.FileMode) (*Store, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("data: creating state directory: %w", err)
	}
	return &Store{logger: logger, path: path, perm: perm}, nil
}

// Load unmarshals the persisted document into dst, merging over
// whatever zero/default value dst already holds so newly-introduced
// fields in a struct do not crash on older state files. If the file
// does not exist, dst is left untouched and (false, nil) is returned.
func (s *Store) Load(dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("data: reading %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("data: parsing %s: %w", s.path, err)
	}
	return true, nil
}

// Save marshals v and writes it atomically: encode to a temp file in
// the same directory, fsync, then rename over the target path.
func (s *Store) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("data: marshaling %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("data: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("data: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("data: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("data: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, s.perm); err != nil {
		return fmt.Errorf("data: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("data: renaming into place: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("state persisted", zap.String("path", s.path))
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }
