package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for onboarding operations.
var (
	// ErrSessionNotFound indicates the onboarding session does not exist or expired.
	// HTTP Status: 404 Not Found
	ErrSessionNotFound = errors.New("onboarding session not found")

	// ErrUnauthorized indicates the session belongs to another user.
	// HTTP Status: 403 Forbidden
	ErrUnauthorized = errors.New("unauthorized access")

	// ErrSessionCompleted indicates the session was already handed off.
	// HTTP Status: 409 Conflict
	ErrSessionCompleted = errors.New("onboarding session already completed")

	// ErrStepIncomplete indicates the current step's required fields are not valid.
	// HTTP Status: 422 Unprocessable Entity
	ErrStepIncomplete = errors.New("please fill in all required fields")

	// ErrInvalidFlow indicates an unknown onboarding flow name.
	// HTTP Status: 400 Bad Request
	ErrInvalidFlow = errors.New("invalid onboarding flow")

	// ErrUsernameTaken indicates another profile already uses the username.
	// HTTP Status: 409 Conflict
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidEmail indicates the provided email address is invalid.
	// HTTP Status: 400 Bad Request
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidCode indicates the verification code does not match.
	// HTTP Status: 400 Bad Request
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrCodeExpired indicates no live verification code exists for the email.
	// HTTP Status: 410 Gone
	ErrCodeExpired = errors.New("verification code expired")

	// ErrTooManyAttempts indicates the code was locked after repeated failures.
	// HTTP Status: 429 Too Many Requests
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrResendCooldown indicates a code was sent too recently.
	// HTTP Status: 429 Too Many Requests
	ErrResendCooldown = errors.New("verification code sent too recently")

	// ErrInvalidImage indicates the upload is not a decodable PNG, JPEG or GIF.
	// HTTP Status: 400 Bad Request
	ErrInvalidImage = errors.New("invalid image")

	// ErrImageTooLarge indicates the upload exceeds the configured byte limit.
	// HTTP Status: 413 Request Entity Too Large
	ErrImageTooLarge = errors.New("image too large")

	// ErrAvatarNotFound indicates the avatar reference is unknown or malformed.
	// HTTP Status: 404 Not Found
	ErrAvatarNotFound = errors.New("avatar not found")

	// ErrInvalidCredentials indicates the trading platform rejected the credentials.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid trading account credentials")

	// ErrAccountAlreadyLinked indicates the trading account belongs to another profile.
	// HTTP Status: 409 Conflict
	ErrAccountAlreadyLinked = errors.New("trading account already linked")

	// ErrLinkingUnavailable indicates no account linking backend is configured.
	// HTTP Status: 503 Service Unavailable
	ErrLinkingUnavailable = errors.New("account linking unavailable")
)

// StepIncompleteError lists the fields blocking a step.
type StepIncompleteError struct {
	Step    Step
	Missing []Field
}

func (e *StepIncompleteError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		missing[i] = string(f)
	}
	return fmt.Sprintf("step %q incomplete: missing %s", e.Step, strings.Join(missing, ", "))
}

func (e *StepIncompleteError) Is(target error) bool {
	return target == ErrStepIncomplete
}

// CooldownError reports how long until another code may be sent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting another code", int(e.Remaining.Round(time.Second).Seconds()))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrResendCooldown
}
