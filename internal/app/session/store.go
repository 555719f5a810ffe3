/*
Package session owns the process-wide authentication state.

This file defines the Store struct: the single owner of the current identity
and its credential pair. All mutation goes through Login, Logout, and
RotateAccessCredential; nothing else may touch the persisted record.
*/
package session

import (
	"sync"

	"github.com/rs/zerolog"

	"chatlink/internal/app/identity"
	"chatlink/internal/pkg/logx"
)

// Store holds the current identity and keeps the durable slot in sync with it.
type Store struct {
	mu      sync.RWMutex
	current *identity.Identity
	slot    Slot
	logger  zerolog.Logger
}

// NewStore constructs a Store, initializing it from whatever the durable slot
// holds. A slot that cannot be read starts the store logged out rather than
// failing the process.
func NewStore(slot Slot) *Store {
	logger := logx.Component("SessionStore")

	s := &Store{
		slot:   slot,
		logger: logger,
	}

	stored, err := slot.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to restore session from durable slot. Starting logged out.")
		return s
	}

	if stored != nil {
		s.current = stored
		logger.Info().Str("uid", stored.UID).Msg("Session restored from durable slot.")
	}

	return s
}

// Current returns a copy of the active identity and whether one exists.
func (s *Store) Current() (identity.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return identity.Identity{}, false
	}
	return *s.current, true
}

// Login replaces the current identity unconditionally and persists it.
// Callers separately trigger dependent reconnection; the store itself has no
// side effects beyond its own state.
func (s *Store) Login(id identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &id

	if err := s.slot.Save(&id); err != nil {
		s.logger.Error().Err(err).Str("uid", id.UID).Msg("Failed to persist identity.")
	}

	s.logger.Info().Str("uid", id.UID).Msg("Logged in.")
}

// Logout clears the identity and the durable slot.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}

	uid := s.current.UID
	s.current = nil

	if err := s.slot.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear durable slot.")
	}

	s.logger.Info().Str("uid", uid).Msg("Logged out.")
}

// RotateAccessCredential replaces only the access credential of the current
// identity, preserving the refresh credential and identity metadata, and
// persists the updated record. It is a silent no-op when no identity is
// active: a refresh that completes after logout must not resurrect the
// cleared session.
func (s *Store) RotateAccessCredential(newAccess string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		s.logger.Warn().Msg("Access credential rotation with no active identity. Ignoring.")
		return
	}

	s.current.AccessToken = newAccess

	if err := s.slot.Save(s.current); err != nil {
		s.logger.Error().Err(err).Str("uid", s.current.UID).Msg("Failed to persist rotated credential.")
	}

	s.logger.Debug().Str("uid", s.current.UID).Msg("Access credential rotated.")
}
