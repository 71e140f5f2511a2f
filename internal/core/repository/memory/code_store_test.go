package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

func TestCodeStore_CooldownAndExpiry(t *testing.T) {
	store := NewCodeStore()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, err := store.AcquireCooldown(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	ok, remaining, err := store.AcquireCooldown(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, remaining)

	require.NoError(t, store.ReleaseCooldown(ctx, "k"))
	ok, _, err = store.AcquireCooldown(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.SaveCode(ctx, "k", "h", time.Minute))
	n, _ := store.IncrementAttempts(ctx, "k", time.Minute)
	assert.EqualValues(t, 1, n)

	now = now.Add(2 * time.Minute)
	_, err = store.GetCode(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCodeExpired)

	n, _ = store.IncrementAttempts(ctx, "k", time.Minute)
	assert.EqualValues(t, 1, n, "attempt counter expires with the code")
}
