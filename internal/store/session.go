package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// SessionStore is a thread-safe in-memory store for host sessions,
// keyed by session id.
type SessionStore[S any] struct {
	mu       sync.RWMutex
	sessions map[string]S
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore[S any]() *SessionStore[S] {
	return &SessionStore[S]{
		sessions: make(map[string]S),
	}
}

// Create adds a session to the store. It returns
// domain.ErrSessionAlreadyExists if the id is taken.
func (s *SessionStore[S]) Create(id string, session S) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return domain.ErrSessionAlreadyExists
	}
	s.sessions[id] = session
	return nil
}

// Get retrieves a session by id. It returns
// domain.ErrSessionNotFound if the session does not exist.
func (s *SessionStore[S]) Get(id string) (S, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		var zero S
		return zero, domain.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a session and returns it. It returns
// domain.ErrSessionNotFound if the session does not exist.
func (s *SessionStore[S]) Delete(id string) (S, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		var zero S
		return zero, domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return session, nil
}

// IDs returns every session id in lexical order.
func (s *SessionStore[S]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
