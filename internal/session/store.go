// Package session holds the authenticated identity and credential of the
// running client
package session

import (
	"log/slog"
	"sync"
	"time"
)

// Identity is the signed-in user
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// Session is a snapshot of the store. Authenticated is true iff
// Credential is non-empty and has not been rejected
type Session struct {
	Identity      Identity
	Credential    string
	Authenticated bool
	LoggedInAt    time.Time
}

// Persister keeps a session across restarts
type Persister interface {
	SaveSession(s Session) error
	LoadSession() (*Session, error)
	ClearSession() error
}

// Store is the process-wide session holder. It never fails: persistence
// errors are logged and the in-memory state stays authoritative
type Store struct {
	mu      sync.RWMutex
	current Session
	persist Persister
	logger  *slog.Logger
}

// NewStore creates an empty, unauthenticated store. persist may be nil
func NewStore(persist Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persist: persist, logger: logger}
}

// Restore loads a previously saved session, if any
func (s *Store) Restore() bool {
	if s.persist == nil {
		return false
	}

	saved, err := s.persist.LoadSession()
	if err != nil {
		s.logger.Warn("Failed to restore session", slog.String("error", err.Error()))
		return false
	}
	if saved == nil || saved.Credential == "" {
		return false
	}

	s.mu.Lock()
	s.current = Session{
		Identity:      saved.Identity,
		Credential:    saved.Credential,
		Authenticated: true,
		LoggedInAt:    saved.LoggedInAt,
	}
	s.mu.Unlock()

	s.logger.Debug("Restored session", slog.String("user_id", saved.Identity.ID))
	return true
}

// Login replaces the current session wholesale. The credential is not
// checked here; the remote judges it on first use
func (s *Store) Login(identity Identity, credential string) {
	next := Session{
		Identity:      identity,
		Credential:    credential,
		Authenticated: credential != "",
		LoggedInAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if s.persist != nil {
		var err error
		if next.Authenticated {
			err = s.persist.SaveSession(next)
		} else {
			err = s.persist.ClearSession()
		}
		if err != nil {
			s.logger.Warn("Failed to persist session", slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Logged in", slog.String("user_id", identity.ID), slog.String("name", identity.Name))
}

// Logout clears the session without contacting the remote
func (s *Store) Logout() {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()

	s.clearPersisted()
	s.logger.Info("Logged out")
}

// Invalidate logs out if credential is still the current one. It reports
// whether the session was cleared; a rejection of an older credential
// leaves a newer session alone
func (s *Store) Invalidate(credential string) bool {
	s.mu.Lock()
	if credential == "" || credential != s.current.Credential {
		s.mu.Unlock()
		return false
	}
	s.current = Session{}
	s.mu.Unlock()

	s.clearPersisted()
	s.logger.Warn("Credential rejected by remote, session cleared")
	return true
}

func (s *Store) clearPersisted() {
	if s.persist == nil {
		return
	}
	if err := s.persist.ClearSession(); err != nil {
		s.logger.Warn("Failed to clear persisted session", slog.String("error", err.Error()))
	}
}

// IsAuthenticated reports whether a usable credential is held
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated
}

// Current returns a copy of the session
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Credential returns the bearer token when authenticated
func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.current.Authenticated {
		return "", false
	}
	return s.current.Credential, true
}

// Identity returns the signed-in user when authenticated
func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.current.Authenticated {
		return Identity{}, false
	}
	return s.current.Identity, true
}
