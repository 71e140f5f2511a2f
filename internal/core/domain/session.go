package domain

import "time"

// FlowName identifies an ordered sequence of onboarding steps.
type FlowName string

const (
	FlowProfile  FlowName = "profile"
	FlowStrategy FlowName = "strategy"
)

// Step is one screen of an onboarding flow.
type Step string

const (
	StepWelcome    Step = "welcome"
	StepAuth       Step = "auth"
	StepUsername   Step = "username"
	StepProfilePic Step = "profile-pic"
	StepBio        Step = "bio"
	StepHashtags   Step = "hashtags"
	StepStrategy   Step = "strategy"
	StepConnect    Step = "connect"
)

// Session holds a draft, the XP granted so far and the position in a flow.
type Session struct {
	ID        string              `json:"id"`
	OwnerID   string              `json:"ownerId"`
	Flow      FlowName            `json:"flow"`
	StepIndex int                 `json:"stepIndex"`
	Draft     ProfileDraft        `json:"draft"`
	XPLedger  map[ChecklistID]int `json:"xpLedger"`
	Completed bool                `json:"completed"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// LinkedAccount is the handle returned by the account linker.
type LinkedAccount struct {
	ID       string   `json:"account_id"`
	Platform Platform `json:"platform"`
}

// Event types published on the events topic.
const (
	EventOnboardingCompleted = "onboarding.completed"
	EventVerificationCode    = "verification.code_requested"
)

// Event is the envelope for everything the service publishes.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}
