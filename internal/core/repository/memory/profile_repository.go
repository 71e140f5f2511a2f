package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// ProfileRepository implements domain.ProfileRepository in memory.
type ProfileRepository struct {
	mu        sync.RWMutex
	profiles  map[string]domain.Profile
	usernames map[string]string // normalized username -> user ID
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles:  make(map[string]domain.Profile),
		usernames: make(map[string]string),
	}
}

func (r *ProfileRepository) SaveProfile(_ context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ""
	if p.Username != "" {
		key = domain.NormalizeUsername(p.Username)
		if owner, ok := r.usernames[key]; ok && owner != p.UserID {
			return fmt.Errorf("save profile for user %q: %w", p.UserID, domain.ErrUsernameTaken)
		}
	}
	// A resave replaces the user's previous username.
	if prev, ok := r.profiles[p.UserID]; ok && prev.Username != "" {
		delete(r.usernames, domain.NormalizeUsername(prev.Username))
	}
	if key != "" {
		r.usernames[key] = p.UserID
	}

	stored := *p
	stored.Tags = append([]string(nil), p.Tags...)
	r.profiles[p.UserID] = stored
	return nil
}

func (r *ProfileRepository) UsernameOwner(_ context.Context, normalized string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usernames[normalized], nil
}

// Profile returns the stored profile for a user.
func (r *ProfileRepository) Profile(userID string) (domain.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	return p, ok
}
