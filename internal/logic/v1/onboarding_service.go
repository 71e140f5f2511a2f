package v1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/onboarding-service/internal/core/domain"
	"github.com/duynhne/onboarding-service/middleware"
)

// Dependencies are the collaborators the onboarding service drives.
type Dependencies struct {
	Sessions     domain.SessionStore
	Profiles     domain.ProfileRepository
	Usernames    *UsernameChecker
	Verification *VerificationService
	Avatars      domain.AvatarStore
	Linker       domain.AccountLinker
	Events       domain.EventPublisher
}

// SessionView is a session plus everything derived from its draft.
type SessionView struct {
	ID                   string                 `json:"id"`
	Flow                 domain.FlowName        `json:"flow"`
	Steps                []domain.Step          `json:"steps"`
	CurrentStep          domain.Step            `json:"currentStep"`
	StepIndex            int                    `json:"stepIndex"`
	Completed            bool                   `json:"completed"`
	Draft                domain.ProfileDraft    `json:"draft"`
	Checklist            []domain.ChecklistItem `json:"checklist"`
	CompletionPercentage int                    `json:"completionPercentage"`
	TotalXP              int                    `json:"totalXp"`
	CanAdvance           bool                   `json:"canAdvance"`
	MissingFields        []domain.Field         `json:"missingFields"`
}

// AdvanceInput carries data accepted only at advance time.
type AdvanceInput struct {
	// Credentials are used for the connect step and dropped afterwards.
	Credentials *domain.AccountCredentials
}

// OnboardingService runs onboarding sessions: field edits, step gating and
// the final hand-off of the profile.
type OnboardingService struct {
	deps   Dependencies
	rules  Rules
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewOnboardingService creates a new onboarding service
func NewOnboardingService(deps Dependencies, rules Rules, logger *zap.Logger) *OnboardingService {
	return &OnboardingService{
		deps:   deps,
		rules:  rules,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Start creates a session with an empty draft. An empty flow means the profile flow.
func (s *OnboardingService) Start(ctx context.Context, ownerID string, flow domain.FlowName) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.start", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("flow", string(flow)),
	))
	defer span.End()

	if flow == "" {
		flow = domain.FlowProfile
	}
	if _, err := StepsFor(flow); err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Flow:      flow,
		Draft:     domain.NewProfileDraft(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	tracker := NewTracker(session, s.rules)
	recordAwards(tracker)

	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("start session: %w", err)
	}

	sessionsStarted.WithLabelValues(string(flow)).Inc()
	span.SetAttributes(attribute.String("session.id", session.ID))
	return s.view(session, tracker), nil
}

// Get returns a session the caller owns, completed or not.
func (s *OnboardingService) Get(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.get", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.load(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(session, NewTracker(session, s.rules)), nil
}

// UpdateField sets one draft field. The bool reports whether the value was
// accepted; rejected values leave the draft unchanged and are not an error.
// Credentials are not accepted here because they are never stored.
func (s *OnboardingService) UpdateField(ctx context.Context, ownerID, sessionID string, field domain.Field, value any) (*SessionView, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.update_field", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
		attribute.String("field", string(field)),
	))
	defer span.End()

	return s.mutate(ctx, ownerID, sessionID, func(t *Tracker) bool {
		if field == domain.FieldAccountUsername || field == domain.FieldAccountPassword {
			return false
		}
		return t.UpdateField(field, value)
	})
}

// AddTag appends one tag to the draft.
func (s *OnboardingService) AddTag(ctx context.Context, ownerID, sessionID, tag string) (*SessionView, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.add_tag", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	return s.mutate(ctx, ownerID, sessionID, func(t *Tracker) bool { return t.AddTag(tag) })
}

// RemoveTag removes one tag from the draft.
func (s *OnboardingService) RemoveTag(ctx context.Context, ownerID, sessionID, tag string) (*SessionView, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.remove_tag", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	return s.mutate(ctx, ownerID, sessionID, func(t *Tracker) bool { return t.RemoveTag(tag) })
}

// Advance confirms the current step. It fails with a StepIncompleteError when
// the step's required fields are not valid. Confirming the final step saves
// the profile and completes the session.
func (s *OnboardingService) Advance(ctx context.Context, ownerID, sessionID string, input AdvanceInput) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.advance", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	step, err := CurrentStep(session)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("step", string(step)))

	tracker := NewTracker(session, s.rules)
	defer tracker.ClearCredentials()
	if input.Credentials != nil {
		tracker.UpdateField(domain.FieldAccountUsername, input.Credentials.Username)
		tracker.UpdateField(domain.FieldAccountPassword, input.Credentials.Password)
	}

	if missing := tracker.MissingFields(step); len(missing) > 0 {
		stepAdvances.WithLabelValues(string(session.Flow), string(step), "incomplete").Inc()
		return nil, &domain.StepIncompleteError{Step: step, Missing: missing}
	}
	if IsFinalStep(session) {
		if incomplete := passedStepsIncomplete(session, tracker); incomplete != nil {
			stepAdvances.WithLabelValues(string(session.Flow), string(step), "incomplete").Inc()
			return nil, incomplete
		}
	}

	if err := s.runStepEffects(ctx, session, tracker, step); err != nil {
		span.RecordError(err)
		stepAdvances.WithLabelValues(string(session.Flow), string(step), "rejected").Inc()
		return nil, err
	}
	tracker.ClearCredentials()

	if IsFinalStep(session) {
		if err := s.complete(ctx, session, tracker); err != nil {
			span.RecordError(err)
			stepAdvances.WithLabelValues(string(session.Flow), string(step), "rejected").Inc()
			return nil, err
		}
	} else {
		session.StepIndex++
	}

	session.UpdatedAt = s.now()
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session %q: %w", sessionID, err)
	}

	stepAdvances.WithLabelValues(string(session.Flow), string(step), "advanced").Inc()
	s.logger.Info("Onboarding step advanced",
		zap.String("session_id", sessionID),
		zap.String("step", string(step)),
		zap.Bool("completed", session.Completed),
	)
	return s.view(session, tracker), nil
}

// Back moves to the previous step. Data entered on later steps is kept.
func (s *OnboardingService) Back(ctx context.Context, ownerID, sessionID string) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.back", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StepIndex > 0 {
		session.StepIndex--
		session.UpdatedAt = s.now()
		if err := s.deps.Sessions.Save(ctx, session); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("save session %q: %w", sessionID, err)
		}
	}
	return s.view(session, NewTracker(session, s.rules)), nil
}

// CheckUsername reports whether a username is free to claim.
func (s *OnboardingService) CheckUsername(ctx context.Context, candidate string) (bool, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.check_username", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	available, err := s.deps.Usernames.Available(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	span.SetAttributes(attribute.Bool("username.available", available))
	return available, nil
}

// UploadAvatar stores the image and records only its reference on the draft.
func (s *OnboardingService) UploadAvatar(ctx context.Context, ownerID, sessionID string, r io.Reader) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.upload_avatar", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	ref, err := s.deps.Avatars.Store(ctx, r)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store avatar: %w", err)
	}

	tracker := NewTracker(session, s.rules)
	tracker.UpdateField(domain.FieldAvatar, ref)
	recordAwards(tracker)

	session.UpdatedAt = s.now()
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session %q: %w", sessionID, err)
	}
	return s.view(session, tracker), nil
}

// AvatarPath resolves an avatar reference to a servable file.
func (s *OnboardingService) AvatarPath(ref string) (string, error) {
	return s.deps.Avatars.Path(ref)
}

// SendVerificationCode sends a code to the draft's email address.
func (s *OnboardingService) SendVerificationCode(ctx context.Context, ownerID, sessionID string) error {
	ctx, span := middleware.StartSpan(ctx, "onboarding.send_code", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if session.Draft.Email == "" {
		return fmt.Errorf("session %q has no email: %w", sessionID, domain.ErrInvalidEmail)
	}
	if err := s.deps.Verification.Send(ctx, session.Draft.Email); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// VerifyEmail checks the code and marks the draft's email as verified.
func (s *OnboardingService) VerifyEmail(ctx context.Context, ownerID, sessionID, code string) (*SessionView, error) {
	ctx, span := middleware.StartSpan(ctx, "onboarding.verify_email", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Draft.Email == "" {
		return nil, fmt.Errorf("session %q has no email: %w", sessionID, domain.ErrInvalidEmail)
	}
	if err := s.deps.Verification.Verify(ctx, session.Draft.Email, code); err != nil {
		span.SetAttributes(attribute.Bool("email.verified", false))
		return nil, err
	}

	session.Draft.EmailVerified = true
	session.UpdatedAt = s.now()
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session %q: %w", sessionID, err)
	}
	span.SetAttributes(attribute.Bool("email.verified", true))
	return s.view(session, NewTracker(session, s.rules)), nil
}

func (s *OnboardingService) mutate(ctx context.Context, ownerID, sessionID string, apply func(*Tracker) bool) (*SessionView, bool, error) {
	session, err := s.loadMutable(ctx, ownerID, sessionID)
	if err != nil {
		return nil, false, err
	}

	tracker := NewTracker(session, s.rules)
	if !apply(tracker) {
		return s.view(session, tracker), false, nil
	}
	recordAwards(tracker)

	session.UpdatedAt = s.now()
	if err := s.deps.Sessions.Save(ctx, session); err != nil {
		return nil, false, fmt.Errorf("save session %q: %w", sessionID, err)
	}
	return s.view(session, tracker), true, nil
}

func (s *OnboardingService) runStepEffects(ctx context.Context, session *domain.Session, tracker *Tracker, step domain.Step) error {
	draft := tracker.Draft()

	switch step {
	case domain.StepUsername:
		available, err := s.deps.Usernames.AvailableFor(ctx, session.OwnerID, draft.Username)
		if err != nil {
			return err
		}
		if !available {
			return fmt.Errorf("username %q: %w", draft.Username, domain.ErrUsernameTaken)
		}

	case domain.StepConnect:
		if s.deps.Linker == nil {
			return domain.ErrLinkingUnavailable
		}
		account, err := s.deps.Linker.Link(ctx, draft.Platform, draft.Credentials)
		if err != nil {
			return fmt.Errorf("link %s account: %w", draft.Platform, err)
		}
		draft.LinkedAccountID = account.ID
	}
	return nil
}

func (s *OnboardingService) complete(ctx context.Context, session *domain.Session, tracker *Tracker) error {
	profile := tracker.Snapshot(s.now())
	if err := s.deps.Profiles.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	session.Completed = true
	completions.WithLabelValues(string(session.Flow)).Inc()

	event := domain.Event{
		ID:         s.newID(),
		Type:       domain.EventOnboardingCompleted,
		Key:        session.OwnerID,
		OccurredAt: profile.CompletedAt,
		Payload:    profile,
	}
	// The profile is already saved; a lost event must not undo the hand-off.
	if err := s.deps.Events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish onboarding completion",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *OnboardingService) load(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	session, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	if session.OwnerID != ownerID {
		return nil, fmt.Errorf("session %q: %w", sessionID, domain.ErrUnauthorized)
	}
	return session, nil
}

func (s *OnboardingService) loadMutable(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	session, err := s.load(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, fmt.Errorf("session %q: %w", sessionID, domain.ErrSessionCompleted)
	}
	return session, nil
}

func (s *OnboardingService) view(session *domain.Session, tracker *Tracker) *SessionView {
	steps, _ := StepsFor(session.Flow)
	v := &SessionView{
		ID:                   session.ID,
		Flow:                 session.Flow,
		Steps:                steps,
		StepIndex:            session.StepIndex,
		Completed:            session.Completed,
		Draft:                session.Draft,
		Checklist:            tracker.Checklist(),
		CompletionPercentage: tracker.CompletionPercentage(),
		TotalXP:              tracker.TotalXP(),
		MissingFields:        []domain.Field{},
	}
	if step, err := CurrentStep(session); err == nil {
		v.CurrentStep = step
		if !session.Completed {
			if missing := tracker.MissingFields(step); len(missing) > 0 {
				v.MissingFields = missing
			}
			v.CanAdvance = len(v.MissingFields) == 0
		}
	}
	return v
}

func recordAwards(t *Tracker) {
	for _, id := range t.Awarded() {
		xpAwarded.WithLabelValues(string(id)).Add(float64(xpRewardFor(id)))
	}
}

func xpRewardFor(id domain.ChecklistID) int {
	for _, def := range checklistDefs {
		if def.id == id {
			return def.xpReward
		}
	}
	return 0
}
