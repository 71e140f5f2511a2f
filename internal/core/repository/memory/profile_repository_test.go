package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

func TestProfileRepository_UsernameOwnership(t *testing.T) {
	repo := NewProfileRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveProfile(ctx, &domain.Profile{UserID: "u1", Username: "Alice"}))
	owner, err := repo.UsernameOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	err = repo.SaveProfile(ctx, &domain.Profile{UserID: "u2", Username: "ALICE"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	require.NoError(t, repo.SaveProfile(ctx, &domain.Profile{UserID: "u1", Username: "alice_fx"}))
	owner, err = repo.UsernameOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, owner)
	owner, err = repo.UsernameOwner(ctx, "alice_fx")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	require.NoError(t, repo.SaveProfile(ctx, &domain.Profile{UserID: "u2", Username: "alice"}))
	p, ok := repo.Profile("u2")
	require.True(t, ok)
	assert.Equal(t, "alice", p.Username)
}
