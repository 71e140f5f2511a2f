// Package memory keeps sessions and profiles in process memory. It backs local
// development when Redis or PostgreSQL are not configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

type storedSession struct {
	data      []byte
	expiresAt time.Time
}

// SessionStore implements domain.SessionStore with a mutex-guarded map.
// Sessions are stored encoded, so callers never share a draft by reference.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]storedSession
}

// NewSessionStore creates a store whose entries expire after ttl (0 disables expiry).
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]storedSession),
	}
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	stored, ok := s.sessions[id]
	if ok && s.ttl > 0 && s.now().After(stored.expiresAt) {
		delete(s.sessions, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("get session %q: %w", id, domain.ErrSessionNotFound)
	}

	var session domain.Session
	if err := json.Unmarshal(stored.data, &session); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", id, err)
	}
	return &session, nil
}

func (s *SessionStore) Save(_ context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", session.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = storedSession{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

