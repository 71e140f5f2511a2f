package domain

import (
	"context"
	"io"
	"time"
)

// SessionStore persists onboarding sessions until their TTL runs out.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
}

// ProfileRepository receives completed profiles and answers username lookups.
type ProfileRepository interface {
	SaveProfile(ctx context.Context, profile *Profile) error
	UsernameDirectory
}

// UsernameDirectory knows which normalized usernames are in use.
type UsernameDirectory interface {
	// UsernameOwner returns the user ID holding the username, or "" when free.
	UsernameOwner(ctx context.Context, normalized string) (string, error)
}

// CodeStore keeps hashed verification codes and the resend cooldown.
type CodeStore interface {
	// AcquireCooldown starts the cooldown for key. When a cooldown is already
	// running it returns false and the time left.
	AcquireCooldown(ctx context.Context, key string, cooldown time.Duration) (bool, time.Duration, error)
	ReleaseCooldown(ctx context.Context, key string) error
	SaveCode(ctx context.Context, key, hash string, ttl time.Duration) error
	// GetCode returns ErrCodeExpired when no code is stored.
	GetCode(ctx context.Context, key string) (string, error)
	IncrementAttempts(ctx context.Context, key string, ttl time.Duration) (int64, error)
	DeleteCode(ctx context.Context, key string) error
}

// CodeSender delivers a verification code to an email address.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string, ttl time.Duration) error
}

// AvatarStore keeps uploaded avatar images and hands out opaque references.
type AvatarStore interface {
	Store(ctx context.Context, r io.Reader) (string, error)
	Path(ref string) (string, error)
}

// AccountLinker links a trading account through a secure backend.
type AccountLinker interface {
	Link(ctx context.Context, platform Platform, creds AccountCredentials) (*LinkedAccount, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
