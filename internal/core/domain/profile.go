package domain

import "time"

// Theme is the visual theme of a trader's profile card.
type Theme string

const (
	ThemeMidnight Theme = "midnight"
	ThemeAurora   Theme = "aurora"
	ThemeSunset   Theme = "sunset"
	ThemeOcean    Theme = "ocean"
	ThemeMatrix   Theme = "matrix"
)

// DefaultTheme is applied to every new draft, so a draft always has a theme.
const DefaultTheme = ThemeMidnight

// Themes lists the selectable themes in display order.
var Themes = []Theme{ThemeMidnight, ThemeAurora, ThemeSunset, ThemeOcean, ThemeMatrix}

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	for _, known := range Themes {
		if t == known {
			return true
		}
	}
	return false
}

// ExperienceLevel is the self-declared trading experience.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

func (l ExperienceLevel) Valid() bool {
	switch l {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced:
		return true
	}
	return false
}

// Risk level bounds, inclusive.
const (
	MinRiskLevel     = 1
	MaxRiskLevel     = 10
	DefaultRiskLevel = 5
)

type TradingStyle struct {
	RiskLevel       int             `json:"riskLevel"`
	ExperienceLevel ExperienceLevel `json:"experienceLevel"`
}

// Platform identifies a trading platform an account can be linked from.
type Platform string

const (
	PlatformMT4     Platform = "mt4"
	PlatformMT5     Platform = "mt5"
	PlatformCTrader Platform = "ctrader"
	PlatformBinance Platform = "binance"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformMT4, PlatformMT5, PlatformCTrader, PlatformBinance:
		return true
	}
	return false
}

// AccountCredentials are entered on the connect step and forwarded to the
// account linker. They are never serialized.
type AccountCredentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// ProfileDraft is the in-progress profile a user builds during onboarding.
type ProfileDraft struct {
	Email           string       `json:"email,omitempty"`
	EmailVerified   bool         `json:"emailVerified"`
	Username        string       `json:"username"`
	AvatarRef       *string      `json:"avatarReference,omitempty"`
	Bio             string       `json:"bio"`
	Tags            []string     `json:"tags"`
	Theme           Theme        `json:"theme"`
	TradingStyle    TradingStyle `json:"tradingStyle"`
	StrategyName    string       `json:"strategyName,omitempty"`
	Platform        Platform     `json:"platform,omitempty"`
	LinkedAccountID string       `json:"linkedAccountId,omitempty"`

	Credentials AccountCredentials `json:"-"`
}

// NewProfileDraft returns an empty draft with every defaulted field set.
func NewProfileDraft() ProfileDraft {
	return ProfileDraft{
		Tags:  []string{},
		Theme: DefaultTheme,
		TradingStyle: TradingStyle{
			RiskLevel:       DefaultRiskLevel,
			ExperienceLevel: ExperienceBeginner,
		},
	}
}

// Field names a mutable draft field.
type Field string

const (
	FieldEmail           Field = "email"
	FieldUsername        Field = "username"
	FieldAvatar          Field = "avatar"
	FieldBio             Field = "bio"
	FieldTags            Field = "tags"
	FieldTheme           Field = "theme"
	FieldRiskLevel       Field = "riskLevel"
	FieldExperienceLevel Field = "experienceLevel"
	FieldStrategyName    Field = "strategyName"
	FieldPlatform        Field = "platform"
	FieldAccountUsername Field = "accountUsername"
	FieldAccountPassword Field = "accountPassword"

	// FieldEmailVerified is never settable through a field update; it only
	// shows up in missing-field reports.
	FieldEmailVerified Field = "emailVerified"
)

// ChecklistID names one completion criterion.
type ChecklistID string

const (
	ChecklistUsername ChecklistID = "username"
	ChecklistAvatar   ChecklistID = "avatar"
	ChecklistBio      ChecklistID = "bio"
	ChecklistTags     ChecklistID = "tags"
	ChecklistTheme    ChecklistID = "theme"
)

// ChecklistItem is derived from a draft and never stored.
type ChecklistItem struct {
	ID         ChecklistID `json:"id"`
	Label      string      `json:"label"`
	IsComplete bool        `json:"isComplete"`
	XPReward   int         `json:"xpReward"`
}

// Profile is the snapshot handed to the profile repository when onboarding
// completes.
type Profile struct {
	UserID               string       `json:"userId"`
	Flow                 FlowName     `json:"flow"`
	Email                string       `json:"email,omitempty"`
	Username             string       `json:"username,omitempty"`
	AvatarRef            *string      `json:"avatarReference,omitempty"`
	Bio                  string       `json:"bio"`
	Tags                 []string     `json:"tags"`
	Theme                Theme        `json:"theme"`
	TradingStyle         TradingStyle `json:"tradingStyle"`
	StrategyName         string       `json:"strategyName,omitempty"`
	Platform             Platform     `json:"platform,omitempty"`
	LinkedAccountID      string       `json:"linkedAccountId,omitempty"`
	TotalXP              int          `json:"totalXp"`
	CompletionPercentage int          `json:"completionPercentage"`
	CompletedAt          time.Time    `json:"completedAt"`
}
