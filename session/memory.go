// In-memory session storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral conversations

package session

import (
	"context"
	"sync"
)

// Store persists session contexts at conversation boundaries. The core
// only requires load/save hooks; persistence beyond process lifetime is a
// property of the chosen implementation.
type Store interface {
	// Load returns the context for a session, or a fresh context when the
	// session is unknown.
	Load(ctx context.Context, sessionID string) (*Context, error)

	// Save persists the context for its session.
	Save(ctx context.Context, sc *Context) error

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// List returns all known session IDs.
	List(ctx context.Context) ([]string, error)
}

// MemoryStore implements Store using an in-memory map. Data is lost when
// the process terminates.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Context
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Context)}
}

// Load loads the context for a session. Unknown sessions get a fresh
// context.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.sessions[sessionID]
	if !ok {
		return NewContext(sessionID), nil
	}
	// Return a copy to avoid external mutations
	return sc.Clone(), nil
}

// Save saves the context for its session.
func (s *MemoryStore) Save(_ context.Context, sc *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sc.SessionID] = sc.Clone()
	return nil
}

// Delete deletes a session.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// List lists all session IDs.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
