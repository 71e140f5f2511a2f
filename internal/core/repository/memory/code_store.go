package memory

import (
	"context"
	"sync"
	"time"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

type expiring struct {
	value     string
	count     int64
	expiresAt time.Time
}

// CodeStore implements domain.CodeStore in memory.
type CodeStore struct {
	mu        sync.Mutex
	now       func() time.Time
	codes     map[string]expiring
	attempts  map[string]expiring
	cooldowns map[string]expiring
}

func NewCodeStore() *CodeStore {
	return &CodeStore{
		now:       time.Now,
		codes:     make(map[string]expiring),
		attempts:  make(map[string]expiring),
		cooldowns: make(map[string]expiring),
	}
}

// live returns the entry for key if it has not expired, dropping it otherwise.
func (s *CodeStore) live(m map[string]expiring, key string) (expiring, bool) {
	e, ok := m[key]
	if ok && !s.now().Before(e.expiresAt) {
		delete(m, key)
		return expiring{}, false
	}
	return e, ok
}

func (s *CodeStore) AcquireCooldown(_ context.Context, key string, cooldown time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.live(s.cooldowns, key); ok {
		return false, e.expiresAt.Sub(s.now()), nil
	}
	s.cooldowns[key] = expiring{expiresAt: s.now().Add(cooldown)}
	return true, 0, nil
}

func (s *CodeStore) ReleaseCooldown(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cooldowns, key)
	return nil
}

func (s *CodeStore) SaveCode(_ context.Context, key, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[key] = expiring{value: hash, expiresAt: s.now().Add(ttl)}
	delete(s.attempts, key)
	return nil
}

func (s *CodeStore) GetCode(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(s.codes, key)
	if !ok {
		return "", domain.ErrCodeExpired
	}
	return e.value, nil
}

func (s *CodeStore) IncrementAttempts(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(s.attempts, key)
	if !ok {
		e = expiring{expiresAt: s.now().Add(ttl)}
	}
	e.count++
	s.attempts[key] = e
	return e.count, nil
}

func (s *CodeStore) DeleteCode(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, key)
	delete(s.attempts, key)
	return nil
}
