package v1

import (
	"fmt"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// flows maps each flow to its ordered steps. FlowProfile is the canonical
// onboarding; FlowStrategy is the strategy-first variant.
var flows = map[domain.FlowName][]domain.Step{
	domain.FlowProfile: {
		domain.StepWelcome,
		domain.StepAuth,
		domain.StepUsername,
		domain.StepProfilePic,
		domain.StepBio,
		domain.StepHashtags,
	},
	domain.FlowStrategy: {
		domain.StepStrategy,
		domain.StepConnect,
	},
}

// StepsFor returns the ordered steps of a flow.
func StepsFor(flow domain.FlowName) ([]domain.Step, error) {
	steps, ok := flows[flow]
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", flow, domain.ErrInvalidFlow)
	}
	return steps, nil
}

// CurrentStep returns the step the session is on.
func CurrentStep(s *domain.Session) (domain.Step, error) {
	steps, err := StepsFor(s.Flow)
	if err != nil {
		return "", err
	}
	if s.StepIndex < 0 || s.StepIndex >= len(steps) {
		return "", fmt.Errorf("session %q step index %d out of range", s.ID, s.StepIndex)
	}
	return steps[s.StepIndex], nil
}

// IsFinalStep reports whether the session is on the last step of its flow.
func IsFinalStep(s *domain.Session) bool {
	steps, err := StepsFor(s.Flow)
	return err == nil && s.StepIndex == len(steps)-1
}

// passedStepsIncomplete returns the first step before the current one whose
// required fields no longer hold after later edits.
func passedStepsIncomplete(s *domain.Session, t *Tracker) *domain.StepIncompleteError {
	steps, err := StepsFor(s.Flow)
	if err != nil {
		return nil
	}
	for _, step := range steps[:min(s.StepIndex, len(steps))] {
		if missing := t.MissingFields(step); len(missing) > 0 {
			return &domain.StepIncompleteError{Step: step, Missing: missing}
		}
	}
	return nil
}
