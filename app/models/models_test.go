package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestNextBillingDateFor(t *testing.T) {
	start := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)

	monthly := NextBillingDateFor(&Plan{Interval: PlanIntervalMonthly}, start)
	require.NotNil(t, monthly)
	assert.Equal(t, start.AddDate(0, 1, 0), *monthly)

	yearly := NextBillingDateFor(&Plan{Interval: PlanIntervalYearly}, start)
	require.NotNil(t, yearly)
	assert.Equal(t, time.Date(2027, time.January, 31, 12, 0, 0, 0, time.UTC), *yearly)

	assert.Nil(t, NextBillingDateFor(&Plan{Interval: PlanIntervalLifetime}, start))
	assert.Nil(t, NextBillingDateFor(nil, start))
}

func TestNewDefaultLifetimePlan(t *testing.T) {
	plan := NewDefaultLifetimePlan()
	require.NotNil(t, plan.Key)
	assert.Equal(t, PlanKeyLifetimeDefault, *plan.Key)
	assert.True(t, plan.IsLifetime())
	assert.True(t, plan.IsActive)
	assert.NotEmpty(t, plan.FeatureList())
}

func TestFeatureList(t *testing.T) {
	assert.Nil(t, (&Plan{}).FeatureList())
	assert.Nil(t, (&Plan{Features: datatypes.JSON(`{"not":"a list"}`)}).FeatureList())
	assert.Equal(t, []string{"a", "b"}, (&Plan{Features: datatypes.JSON(`["a","b"]`)}).FeatureList())
}

func TestUserValidate(t *testing.T) {
	assert.NoError(t, (&User{Email: "a@x.com", Role: ROLE_USER}).Validate())
	assert.Error(t, (&User{Email: "not-an-email", Role: ROLE_USER}).Validate())
	assert.Error(t, (&User{Email: "a@x.com", Role: "ROOT"}).Validate())
}

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "ana", EmailLocalPart(" ana@x.com "))
	assert.Equal(t, "plain", EmailLocalPart("plain"))
	assert.Equal(t, "@x.com", EmailLocalPart("@x.com"))
}

func TestGenerateTemporaryPassword(t *testing.T) {
	a, err := GenerateTemporaryPassword()
	require.NoError(t, err)
	b, err := GenerateTemporaryPassword()
	require.NoError(t, err)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
}

func TestWebhookEventHelpers(t *testing.T) {
	var nilEvent *WebhookEvent
	assert.False(t, nilEvent.IsFinalized())
	assert.Equal(t, "", nilEvent.ErrorMessage())

	msg := "boom"
	now := time.Now()
	e := &WebhookEvent{Error: &msg, ProcessedAt: &now}
	assert.True(t, e.IsFinalized())
	assert.Equal(t, "boom", e.ErrorMessage())
}
