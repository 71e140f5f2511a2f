package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

func TestStepsFor(t *testing.T) {
	steps, err := StepsFor(domain.FlowProfile)
	require.NoError(t, err)
	assert.Equal(t, []domain.Step{
		domain.StepWelcome, domain.StepAuth, domain.StepUsername,
		domain.StepProfilePic, domain.StepBio, domain.StepHashtags,
	}, steps)

	steps, err = StepsFor(domain.FlowStrategy)
	require.NoError(t, err)
	assert.Equal(t, []domain.Step{domain.StepStrategy, domain.StepConnect}, steps)

	_, err = StepsFor("checkout")
	assert.ErrorIs(t, err, domain.ErrInvalidFlow)
}

func TestCurrentStepAndFinal(t *testing.T) {
	s := &domain.Session{ID: "s", Flow: domain.FlowStrategy}

	step, err := CurrentStep(s)
	require.NoError(t, err)
	assert.Equal(t, domain.StepStrategy, step)
	assert.False(t, IsFinalStep(s))

	s.StepIndex = 1
	step, err = CurrentStep(s)
	require.NoError(t, err)
	assert.Equal(t, domain.StepConnect, step)
	assert.True(t, IsFinalStep(s))

	s.StepIndex = 2
	_, err = CurrentStep(s)
	assert.Error(t, err)
	assert.False(t, IsFinalStep(s))
}
