package v1

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

// Field limits. Minimums are the completion predicates; maximums reject the
// update outright.
const (
	UsernameMinLength     = 3
	UsernameMaxLength     = 30
	StrategyNameMinLength = 3
	StrategyNameMaxLength = 50
	MaxTags               = 5
	TagMaxLength          = 32
	DefaultBioMaxLength   = 280
)

// Rules holds the configurable tracker limits.
type Rules struct {
	BioMaxLength int
}

// DefaultRules returns the limits used when nothing is configured.
func DefaultRules() Rules {
	return Rules{BioMaxLength: DefaultBioMaxLength}
}

type checklistDef struct {
	id       domain.ChecklistID
	label    string
	xpReward int
	complete func(d *domain.ProfileDraft) bool
}

var checklistDefs = []checklistDef{
	{domain.ChecklistUsername, "Choose a username", 100, usernameComplete},
	{domain.ChecklistAvatar, "Upload a profile picture", 100, func(d *domain.ProfileDraft) bool { return d.AvatarRef != nil }},
	{domain.ChecklistBio, "Write a bio", 50, func(d *domain.ProfileDraft) bool { return len(d.Bio) > 0 }},
	{domain.ChecklistTags, "Add hashtags", 50, func(d *domain.ProfileDraft) bool { return len(d.Tags) > 0 }},
	// Always satisfied because a default theme is always present.
	{domain.ChecklistTheme, "Pick a theme", 25, func(*domain.ProfileDraft) bool { return true }},
}

func usernameComplete(d *domain.ProfileDraft) bool {
	return utf8.RuneCountInString(strings.TrimSpace(d.Username)) >= UsernameMinLength
}

// Tracker owns a session's draft and XP ledger. It derives the checklist and
// progress from the draft and gates step advancement.
//
// XP is a ledger: an item's reward is granted the first time the item is
// complete and is never taken back, even if a later edit un-satisfies it.
type Tracker struct {
	session *domain.Session
	rules   Rules
	awarded []domain.ChecklistID
}

// NewTracker wraps a session, filling defaults and granting XP for items that
// are already complete.
func NewTracker(session *domain.Session, rules Rules) *Tracker {
	if session.XPLedger == nil {
		session.XPLedger = make(map[domain.ChecklistID]int)
	}
	if session.Draft.Tags == nil {
		session.Draft.Tags = []string{}
	}
	if !session.Draft.Theme.Valid() {
		session.Draft.Theme = domain.DefaultTheme
	}
	if rules.BioMaxLength <= 0 {
		rules.BioMaxLength = DefaultBioMaxLength
	}

	t := &Tracker{session: session, rules: rules}
	t.award()
	return t
}

// Draft returns the tracked draft.
func (t *Tracker) Draft() *domain.ProfileDraft {
	return &t.session.Draft
}

// Awarded returns the checklist items granted XP since the tracker was created.
func (t *Tracker) Awarded() []domain.ChecklistID {
	return t.awarded
}

// UpdateField sets one draft field. Unknown fields, values of the wrong type
// and out-of-bounds values leave the draft unchanged and return false.
func (t *Tracker) UpdateField(field domain.Field, value any) bool {
	d := &t.session.Draft

	switch field {
	case domain.FieldEmail:
		s, ok := value.(string)
		if !ok {
			return false
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !strings.Contains(s, "@") {
			return false
		}
		if s != d.Email {
			d.Email = s
			d.EmailVerified = false
		}

	case domain.FieldUsername:
		s, ok := value.(string)
		if !ok || utf8.RuneCountInString(strings.TrimSpace(s)) > UsernameMaxLength {
			return false
		}
		d.Username = s

	case domain.FieldAvatar:
		if value == nil {
			d.AvatarRef = nil
			break
		}
		s, ok := value.(string)
		if !ok {
			return false
		}
		if s == "" {
			d.AvatarRef = nil
		} else {
			d.AvatarRef = &s
		}

	case domain.FieldBio:
		s, ok := value.(string)
		if !ok || utf8.RuneCountInString(s) > t.rules.BioMaxLength {
			return false
		}
		d.Bio = s

	case domain.FieldTags:
		tags, ok := toStrings(value)
		if !ok {
			return false
		}
		cleaned := make([]string, 0, len(tags))
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if !validTag(tag) || slices.Contains(cleaned, tag) {
				return false
			}
			cleaned = append(cleaned, tag)
		}
		if len(cleaned) > MaxTags {
			return false
		}
		d.Tags = cleaned

	case domain.FieldTheme:
		s, ok := value.(string)
		if !ok || !domain.Theme(s).Valid() {
			return false
		}
		d.Theme = domain.Theme(s)

	case domain.FieldRiskLevel:
		n, ok := toInt(value)
		if !ok || n < domain.MinRiskLevel || n > domain.MaxRiskLevel {
			return false
		}
		d.TradingStyle.RiskLevel = n

	case domain.FieldExperienceLevel:
		s, ok := value.(string)
		if !ok || !domain.ExperienceLevel(s).Valid() {
			return false
		}
		d.TradingStyle.ExperienceLevel = domain.ExperienceLevel(s)

	case domain.FieldStrategyName:
		s, ok := value.(string)
		if !ok || utf8.RuneCountInString(strings.TrimSpace(s)) > StrategyNameMaxLength {
			return false
		}
		d.StrategyName = s

	case domain.FieldPlatform:
		s, ok := value.(string)
		if !ok || (s != "" && !domain.Platform(s).Valid()) {
			return false
		}
		d.Platform = domain.Platform(s)

	case domain.FieldAccountUsername:
		s, ok := value.(string)
		if !ok {
			return false
		}
		d.Credentials.Username = s

	case domain.FieldAccountPassword:
		s, ok := value.(string)
		if !ok {
			return false
		}
		d.Credentials.Password = s

	default:
		return false
	}

	t.award()
	return true
}

// AddTag appends a tag. Adding past the cap, a duplicate or an empty tag is a no-op.
func (t *Tracker) AddTag(tag string) bool {
	d := &t.session.Draft
	tag = strings.TrimSpace(tag)
	if len(d.Tags) >= MaxTags || !validTag(tag) || slices.Contains(d.Tags, tag) {
		return false
	}
	d.Tags = append(d.Tags, tag)
	t.award()
	return true
}

// RemoveTag deletes a tag, keeping the order of the rest.
func (t *Tracker) RemoveTag(tag string) bool {
	d := &t.session.Draft
	i := slices.Index(d.Tags, strings.TrimSpace(tag))
	if i < 0 {
		return false
	}
	d.Tags = slices.Delete(d.Tags, i, i+1)
	return true
}

// Checklist derives the checklist from the current draft.
func (t *Tracker) Checklist() []domain.ChecklistItem {
	items := make([]domain.ChecklistItem, len(checklistDefs))
	for i, def := range checklistDefs {
		items[i] = domain.ChecklistItem{
			ID:         def.id,
			Label:      def.label,
			IsComplete: def.complete(&t.session.Draft),
			XPReward:   def.xpReward,
		}
	}
	return items
}

// CompletionPercentage is computed live and can go down when a field is cleared.
func (t *Tracker) CompletionPercentage() int {
	return CompletionPercentage(t.Checklist())
}

// TotalXP sums the ledger, so it never decreases within a session.
func (t *Tracker) TotalXP() int {
	total := 0
	for _, xp := range t.session.XPLedger {
		total += xp
	}
	return total
}

// CanAdvance reports whether every field required by step is valid.
func (t *Tracker) CanAdvance(step domain.Step) bool {
	return len(t.MissingFields(step)) == 0
}

// MissingFields lists the fields blocking step, in display order.
func (t *Tracker) MissingFields(step domain.Step) []domain.Field {
	d := &t.session.Draft
	var missing []domain.Field

	switch step {
	case domain.StepAuth:
		if d.Email == "" {
			missing = append(missing, domain.FieldEmail)
		}
		if !d.EmailVerified {
			missing = append(missing, domain.FieldEmailVerified)
		}
	case domain.StepUsername:
		if !usernameComplete(d) {
			missing = append(missing, domain.FieldUsername)
		}
	case domain.StepHashtags:
		if len(d.Tags) == 0 {
			missing = append(missing, domain.FieldTags)
		}
	case domain.StepStrategy:
		if utf8.RuneCountInString(strings.TrimSpace(d.StrategyName)) < StrategyNameMinLength {
			missing = append(missing, domain.FieldStrategyName)
		}
	case domain.StepConnect:
		if d.Platform == "" {
			missing = append(missing, domain.FieldPlatform)
		}
		if d.Credentials.Username == "" {
			missing = append(missing, domain.FieldAccountUsername)
		}
		if d.Credentials.Password == "" {
			missing = append(missing, domain.FieldAccountPassword)
		}
	}
	return missing
}

// ClearCredentials drops the transient connect-step credentials.
func (t *Tracker) ClearCredentials() {
	t.session.Draft.Credentials = domain.AccountCredentials{}
}

// Snapshot builds the profile handed over when onboarding completes.
func (t *Tracker) Snapshot(completedAt time.Time) *domain.Profile {
	d := &t.session.Draft
	return &domain.Profile{
		UserID:               t.session.OwnerID,
		Flow:                 t.session.Flow,
		Email:                d.Email,
		Username:             strings.TrimSpace(d.Username),
		AvatarRef:            d.AvatarRef,
		Bio:                  d.Bio,
		Tags:                 slices.Clone(d.Tags),
		Theme:                d.Theme,
		TradingStyle:         d.TradingStyle,
		StrategyName:         strings.TrimSpace(d.StrategyName),
		Platform:             d.Platform,
		LinkedAccountID:      d.LinkedAccountID,
		TotalXP:              t.TotalXP(),
		CompletionPercentage: t.CompletionPercentage(),
		CompletedAt:          completedAt,
	}
}

// CompletionPercentage is round(100 * completed / total).
func CompletionPercentage(items []domain.ChecklistItem) int {
	if len(items) == 0 {
		return 0
	}
	done := 0
	for _, item := range items {
		if item.IsComplete {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(items))))
}

// TotalXP sums the rewards of complete items. The tracker itself uses its
// ledger instead; this is the live view of the same checklist.
func TotalXP(items []domain.ChecklistItem) int {
	total := 0
	for _, item := range items {
		if item.IsComplete {
			total += item.XPReward
		}
	}
	return total
}

func (t *Tracker) award() {
	for _, def := range checklistDefs {
		if _, granted := t.session.XPLedger[def.id]; granted {
			continue
		}
		if def.complete(&t.session.Draft) {
			t.session.XPLedger[def.id] = def.xpReward
			t.awarded = append(t.awarded, def.id)
		}
	}
}

func validTag(tag string) bool {
	return tag != "" && utf8.RuneCountInString(tag) <= TagMaxLength
}

// toStrings accepts []string or a JSON-decoded []any of strings.
func toStrings(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// toInt accepts Go integers and integral JSON numbers.
func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
