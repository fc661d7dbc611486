package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jrsteele09/taskctl/internal/config"
	"github.com/rs/zerolog/log"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// Store keeps a single AuthSession in a JSON file readable only by its owner.
type Store struct {
	path string
}

// NewStore resolves path ("~" is expanded against the home directory).
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = config.DefaultSessionPath
	}
	expanded, err := config.ExpandHome(path)
	if err != nil {
		return nil, fmt.Errorf("resolving session path: %w", err)
	}
	return &Store{path: expanded}, nil
}

// Path returns the resolved file path.
func (s *Store) Path() string {
	return s.path
}

// Persist writes the session and restricts the file to mode 0600.
func (s *Store) Persist(session *AuthSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid session: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	if err := os.WriteFile(s.path, data, fileMode); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(s.path, fileMode); err != nil {
		return fmt.Errorf("failed to restrict session file permissions: %w", err)
	}
	return nil
}

// Load reads the session file. Any read, parse or validation failure means
// there is no usable session and is reported as ok == false.
func (s *Store) Load() (*AuthSession, bool) {
	// #nosec G304 -- path comes from configuration, not request input
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Debug().Err(err).Str("path", s.path).Msg("Session file unreadable")
		}
		return nil, false
	}

	var session AuthSession
	if err := json.Unmarshal(data, &session); err != nil {
		log.Debug().Err(err).Str("path", s.path).Msg("Session file is not valid JSON")
		return nil, false
	}
	if err := session.Validate(); err != nil {
		log.Debug().Err(err).Str("path", s.path).Msg("Session file is incomplete")
		return nil, false
	}
	return &session, true
}

// Clear removes the session file. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
