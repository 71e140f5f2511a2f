package v1

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/onboarding-service/internal/core/domain"
)

func newTracker(flow domain.FlowName) *Tracker {
	return NewTracker(&domain.Session{ID: "s1", OwnerID: "u1", Flow: flow, Draft: domain.NewProfileDraft()}, DefaultRules())
}

func TestNewTracker_EmptyDraft(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	assert.Equal(t, 20, tr.CompletionPercentage())
	assert.Equal(t, 25, tr.TotalXP())
	assert.Equal(t, domain.DefaultTheme, tr.Draft().Theme)
	assert.Equal(t, []domain.ChecklistID{domain.ChecklistTheme}, tr.Awarded())

	items := tr.Checklist()
	require.Len(t, items, 5)
	for _, item := range items {
		assert.Equal(t, item.ID == domain.ChecklistTheme, item.IsComplete, item.ID)
	}
}

func TestNewTracker_FillsMissingDefaults(t *testing.T) {
	session := &domain.Session{Flow: domain.FlowProfile}
	tr := NewTracker(session, Rules{})

	assert.NotNil(t, session.XPLedger)
	assert.Equal(t, []string{}, tr.Draft().Tags)
	assert.Equal(t, domain.DefaultTheme, tr.Draft().Theme)
	assert.True(t, tr.UpdateField(domain.FieldBio, strings.Repeat("a", DefaultBioMaxLength)))
}

func TestCompletionPercentage_Rounds(t *testing.T) {
	items := func(done int) []domain.ChecklistItem {
		out := make([]domain.ChecklistItem, 3)
		for i := range done {
			out[i].IsComplete = true
		}
		return out
	}

	assert.Equal(t, 0, CompletionPercentage(nil))
	assert.Equal(t, 0, CompletionPercentage(items(0)))
	assert.Equal(t, 33, CompletionPercentage(items(1)))
	assert.Equal(t, 67, CompletionPercentage(items(2)))
	assert.Equal(t, 100, CompletionPercentage(items(3)))
}

func TestUsernameCompletesItem(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	require.True(t, tr.UpdateField(domain.FieldUsername, "alice"))

	assert.Equal(t, 40, tr.CompletionPercentage())
	assert.Equal(t, 125, tr.TotalXP())
	assert.True(t, tr.CanAdvance(domain.StepUsername))
}

func TestUsername_TrimmedLength(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	require.True(t, tr.UpdateField(domain.FieldUsername, "  ab  "))
	assert.False(t, tr.CanAdvance(domain.StepUsername))
	assert.Equal(t, []domain.Field{domain.FieldUsername}, tr.MissingFields(domain.StepUsername))

	assert.False(t, tr.UpdateField(domain.FieldUsername, strings.Repeat("x", UsernameMaxLength+1)))
	assert.Equal(t, "  ab  ", tr.Draft().Username)
}

func TestXPIsNeverRevoked(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	require.True(t, tr.UpdateField(domain.FieldBio, "Swing trader"))
	assert.Equal(t, 75, tr.TotalXP())
	assert.Equal(t, 40, tr.CompletionPercentage())

	assert.Equal(t, tr.TotalXP(), TotalXP(tr.Checklist()))

	require.True(t, tr.UpdateField(domain.FieldBio, ""))
	assert.Equal(t, 75, tr.TotalXP())
	assert.Equal(t, 20, tr.CompletionPercentage())
	assert.Equal(t, 25, TotalXP(tr.Checklist()), "live checklist drops the bio reward, the ledger keeps it")

	require.True(t, tr.UpdateField(domain.FieldBio, "Back again"))
	assert.Equal(t, 75, tr.TotalXP())
	assert.Equal(t, 1, countAwards(tr.Awarded(), domain.ChecklistBio))
}

func countAwards(ids []domain.ChecklistID, id domain.ChecklistID) int {
	n := 0
	for _, got := range ids {
		if got == id {
			n++
		}
	}
	return n
}

func TestTags_CapAndDuplicates(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	for _, tag := range []string{"forex", "crypto", "scalping", "swing", "options"} {
		require.True(t, tr.AddTag(tag), tag)
	}
	assert.False(t, tr.AddTag("futures"))
	assert.Len(t, tr.Draft().Tags, MaxTags)

	assert.False(t, tr.AddTag("forex"))
	assert.False(t, tr.AddTag("   "))
	assert.False(t, tr.AddTag(strings.Repeat("t", TagMaxLength+1)))

	require.True(t, tr.RemoveTag("scalping"))
	assert.Equal(t, []string{"forex", "crypto", "swing", "options"}, tr.Draft().Tags)
	assert.False(t, tr.RemoveTag("scalping"))
}

func TestTags_ReplaceWholeList(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	assert.True(t, tr.UpdateField(domain.FieldTags, []any{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, tr.Draft().Tags)
	assert.True(t, tr.CanAdvance(domain.StepHashtags))

	assert.False(t, tr.UpdateField(domain.FieldTags, []string{"1", "2", "3", "4", "5", "6"}))
	assert.False(t, tr.UpdateField(domain.FieldTags, []any{"a", 1}))
	assert.False(t, tr.UpdateField(domain.FieldTags, []string{"a", "a"}))
	assert.Equal(t, []string{"a", "b"}, tr.Draft().Tags)

	assert.True(t, tr.UpdateField(domain.FieldTags, []string{}))
	assert.False(t, tr.CanAdvance(domain.StepHashtags))
}

func TestStrategyNameGate(t *testing.T) {
	tr := newTracker(domain.FlowStrategy)

	require.True(t, tr.UpdateField(domain.FieldStrategyName, "ab"))
	assert.False(t, tr.CanAdvance(domain.StepStrategy))

	require.True(t, tr.UpdateField(domain.FieldStrategyName, "abc"))
	assert.True(t, tr.CanAdvance(domain.StepStrategy))

	assert.False(t, tr.UpdateField(domain.FieldStrategyName, strings.Repeat("s", StrategyNameMaxLength+1)))
}

func TestConnectGate(t *testing.T) {
	tr := newTracker(domain.FlowStrategy)

	assert.Equal(t, []domain.Field{
		domain.FieldPlatform, domain.FieldAccountUsername, domain.FieldAccountPassword,
	}, tr.MissingFields(domain.StepConnect))

	require.True(t, tr.UpdateField(domain.FieldPlatform, "mt4"))
	require.True(t, tr.UpdateField(domain.FieldAccountUsername, "12345"))
	require.True(t, tr.UpdateField(domain.FieldAccountPassword, "secret"))
	assert.True(t, tr.CanAdvance(domain.StepConnect))

	require.True(t, tr.UpdateField(domain.FieldAccountPassword, ""))
	assert.False(t, tr.CanAdvance(domain.StepConnect))
	assert.Equal(t, []domain.Field{domain.FieldAccountPassword}, tr.MissingFields(domain.StepConnect))

	require.True(t, tr.UpdateField(domain.FieldAccountPassword, "secret"))
	require.True(t, tr.CanAdvance(domain.StepConnect))
	tr.ClearCredentials()
	assert.False(t, tr.CanAdvance(domain.StepConnect))
	assert.Equal(t, domain.Platform("mt4"), tr.Draft().Platform)

	assert.False(t, tr.UpdateField(domain.FieldPlatform, "robinhood"))
}

func TestAuthGate(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	require.True(t, tr.UpdateField(domain.FieldEmail, " Trader@Example.com "))
	assert.Equal(t, "trader@example.com", tr.Draft().Email)
	assert.Equal(t, []domain.Field{domain.FieldEmailVerified}, tr.MissingFields(domain.StepAuth))

	tr.Draft().EmailVerified = true
	assert.True(t, tr.CanAdvance(domain.StepAuth))

	require.True(t, tr.UpdateField(domain.FieldEmail, "trader@example.com"))
	assert.True(t, tr.Draft().EmailVerified)

	require.True(t, tr.UpdateField(domain.FieldEmail, "other@example.com"))
	assert.False(t, tr.Draft().EmailVerified)

	assert.False(t, tr.UpdateField(domain.FieldEmail, "not-an-email"))
}

func TestStepsWithoutRequirements(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	for _, step := range []domain.Step{domain.StepWelcome, domain.StepProfilePic, domain.StepBio} {
		assert.True(t, tr.CanAdvance(step), step)
	}
}

func TestUpdateField_RejectsBadValues(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	assert.False(t, tr.UpdateField(domain.FieldUsername, 42))
	assert.False(t, tr.UpdateField(domain.FieldTheme, "neon"))
	assert.False(t, tr.UpdateField(domain.FieldRiskLevel, 0))
	assert.False(t, tr.UpdateField(domain.FieldRiskLevel, 11))
	assert.False(t, tr.UpdateField(domain.FieldExperienceLevel, "guru"))
	assert.False(t, tr.UpdateField(domain.Field("nickname"), "x"))
	assert.False(t, tr.UpdateField(domain.FieldBio, strings.Repeat("b", DefaultBioMaxLength+1)))

	assert.True(t, tr.UpdateField(domain.FieldTheme, "aurora"))
	assert.True(t, tr.UpdateField(domain.FieldRiskLevel, float64(8)))
	assert.True(t, tr.UpdateField(domain.FieldExperienceLevel, "advanced"))
	assert.Equal(t, 8, tr.Draft().TradingStyle.RiskLevel)
	assert.Equal(t, domain.ExperienceLevel("advanced"), tr.Draft().TradingStyle.ExperienceLevel)
}

func TestAvatarSetAndClear(t *testing.T) {
	tr := newTracker(domain.FlowProfile)

	require.True(t, tr.UpdateField(domain.FieldAvatar, "avatar_01"))
	require.NotNil(t, tr.Draft().AvatarRef)
	assert.Equal(t, 125, tr.TotalXP())

	require.True(t, tr.UpdateField(domain.FieldAvatar, nil))
	assert.Nil(t, tr.Draft().AvatarRef)
	assert.Equal(t, 20, tr.CompletionPercentage())
	assert.Equal(t, 125, tr.TotalXP())
}

func TestSnapshot(t *testing.T) {
	tr := newTracker(domain.FlowProfile)
	require.True(t, tr.UpdateField(domain.FieldUsername, "  alice "))
	require.True(t, tr.AddTag("forex"))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p := tr.Snapshot(at)

	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, []string{"forex"}, p.Tags)
	assert.Equal(t, 175, p.TotalXP)
	assert.Equal(t, 60, p.CompletionPercentage)
	assert.Equal(t, at, p.CompletedAt)

	tr.Draft().Tags[0] = "changed"
	assert.Equal(t, "forex", p.Tags[0])
}
