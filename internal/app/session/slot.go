/*
Package session owns the process-wide authentication state.

This file defines the durable slot the current identity is persisted to. The
slot survives a process restart and is cleared on logout; nothing but the
session store writes it.
*/
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chatlink/internal/app/identity"
)

// Slot is the durable storage the session store persists the identity to.
type Slot interface {
	// Load returns the stored identity, or (nil, nil) when the slot is empty.
	Load() (*identity.Identity, error)

	// Save replaces the slot content.
	Save(id *identity.Identity) error

	// Clear empties the slot.
	Clear() error
}

// FileSlot persists the identity as a single JSON file, written atomically.
type FileSlot struct {
	path string
}

// NewFileSlot returns a FileSlot backed by the given path. Parent directories
// are created on first save.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// Load reads and decodes the stored identity. A missing file is an empty slot.
func (s *FileSlot) Load() (*identity.Identity, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var id identity.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}

	return &id, nil
}

// Save writes the identity to a temporary file and renames it into place, so a
// crash mid-write never leaves a truncated record.
func (s *FileSlot) Save(id *identity.Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Clear removes the session file. A missing file is not an error.
func (s *FileSlot) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
