// Package storage persists small pieces of state on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/satriahrh/elena/assistant/domain/repositories"
)

// SessionFile stores the conversation session identifier as the whole content of a text file
type SessionFile struct {
	path string
}

var _ repositories.SessionIDStore = (*SessionFile)(nil)

// NewSessionFile creates a new SessionFile at path
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Load returns the stored identifier, or "" when the file does not exist
func (f *SessionFile) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file %s: %w", f.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save replaces the file content with id
func (f *SessionFile) Save(id string) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id), 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Path returns the file location
func (f *SessionFile) Path() string {
	return f.path
}
