package v1

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// UsernameChecker is the single availability contract for every screen:
// the candidate is normalized, must be within length bounds, and must not
// belong to another user.
type UsernameChecker struct {
	directory domain.UsernameDirectory
	timeout   time.Duration
}

func NewUsernameChecker(directory domain.UsernameDirectory, timeout time.Duration) *UsernameChecker {
	return &UsernameChecker{directory: directory, timeout: timeout}
}

// Available reports whether anyone may claim candidate.
func (c *UsernameChecker) Available(ctx context.Context, candidate string) (bool, error) {
	return c.AvailableFor(ctx, "", candidate)
}

// AvailableFor reports whether userID may claim candidate. A username the
// user already holds counts as available.
func (c *UsernameChecker) AvailableFor(ctx context.Context, userID, candidate string) (bool, error) {
	normalized := domain.NormalizeUsername(candidate)
	n := utf8.RuneCountInString(normalized)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return false, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	owner, err := c.directory.UsernameOwner(ctx, normalized)
	if err != nil {
		return false, fmt.Errorf("check username availability: %w", err)
	}
	return owner == "" || (userID != "" && owner == userID), nil
}
