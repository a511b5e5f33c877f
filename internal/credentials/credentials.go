// Package credentials resolves operator secrets from the environment
// or a fallback dotenv-style file, mirroring the process-wide
// credential loader this system was distilled from (env var first,
// file second, export-prefix and quote stripping).
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Source resolves named credentials. It is constructed once at
// startup and passed down; no component reads the environment
// directly at request time.
type Source struct {
	mu       sync.Mutex
	filePath string
	loaded   bool
	values   map[string]string
}

// New creates a Source backed by the given fallback file path. If
// path is empty, "~/.atlas-env" is used.
func New(path string) *Source {
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".atlas-env")
		}
	}
	return &Source{filePath: path, values: map[string]string{}}
}

// Get resolves a credential by name: environment variable first, then
// the fallback file. If required and missing, an error is returned;
// otherwise ("", nil) is returned for an absent optional key.
func (s *Source) Get(name string, required bool) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	if err := s.ensureLoaded(); err != nil {
		if required {
			return "", fmt.Errorf("credentials: loading fallback file: %w", err)
		}
	}
	s.mu.Lock()
	v, ok := s.values[name]
	s.mu.Unlock()
	if ok && v != "" {
		return v, nil
	}
	if required {
		return "", fmt.Errorf("credentials: missing required credential %q (set env var or add to %s)", name, s.filePath)
	}
	return "", nil
}

func (s *Source) ensureLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loaded = true
	if s.filePath == "" {
		return nil
	}
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}
	raw, err := godotenv.Read(s.filePath)
	if err != nil {
		return err
	}
	for k, v := range raw {
		s.values[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	return nil
}
