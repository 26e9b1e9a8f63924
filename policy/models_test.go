package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/policymaker/types"
)

func validTerms() Terms {
	return Terms{
		CoverageAmount:     10000,
		InitialPremiumFee:  2000,
		PremiumRate:        1000,
		DurationDays:       365,
		PenaltyRatePercent: 20,
		GracePeriodMonths:  6,
	}
}

func TestTermsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Terms)
		fields []string
	}{
		{"valid", func(*Terms) {}, nil},
		{"zero penalty and grace", func(t *Terms) { t.PenaltyRatePercent = 0; t.GracePeriodMonths = 0 }, nil},
		{"penalty above 100", func(t *Terms) { t.PenaltyRatePercent = 150 }, nil},
		{"currency code", func(t *Terms) { t.Currency = "EUR" }, nil},
		{"zero coverage", func(t *Terms) { t.CoverageAmount = 0 }, []string{"coverage_amount"}},
		{"negative fee", func(t *Terms) { t.InitialPremiumFee = -1 }, []string{"initial_premium_fee"}},
		{"zero rate", func(t *Terms) { t.PremiumRate = 0 }, []string{"premium_rate"}},
		{"zero duration", func(t *Terms) { t.DurationDays = 0 }, []string{"duration_days"}},
		{"negative penalty", func(t *Terms) { t.PenaltyRatePercent = -5 }, []string{"penalty_rate_percent"}},
		{"negative grace", func(t *Terms) { t.GracePeriodMonths = -1 }, []string{"grace_period_months"}},
		{"bad currency", func(t *Terms) { t.Currency = "dollars" }, []string{"currency"}},
		{"several", func(t *Terms) { t.CoverageAmount = 0; t.PremiumRate = -3 }, []string{"coverage_amount", "premium_rate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := validTerms()
			tt.mutate(&terms)

			violations := terms.Validate()
			got := make([]string, 0, len(violations))
			for _, v := range violations {
				got = append(got, v.Field)
				assert.NotEmpty(t, v.Message)
			}
			if tt.fields == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidateCurrency(t *testing.T) {
	for _, code := range []string{"usd", "EUR", " eth "} {
		assert.NoError(t, ValidateCurrency(code), code)
	}
	for _, code := range []string{"", "us", "dollar", "840", "u$d"} {
		assert.Error(t, ValidateCurrency(code), code)
	}
}

func TestNewPolicy(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	p := New(validTerms(), now)

	assert.Zero(t, p.ID)
	assert.True(t, p.IsActive)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, types.USD(10000), p.CoverageAmount)
	assert.Equal(t, types.USD(2000), p.InitialPremiumFee)
	assert.Equal(t, types.USD(1000), p.PremiumRate)
	assert.Equal(t, int64(365), p.DurationDays)
	assert.Equal(t, now, p.CreatedAt)
	assert.Nil(t, p.DeactivatedAt)
}

func TestPolicyExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(validTerms(), now)

	assert.Equal(t, now.AddDate(0, 0, 365), p.ExpiresAt())
	assert.False(t, p.IsExpired(now.AddDate(0, 0, 364)))
	assert.True(t, p.IsExpired(now.AddDate(0, 0, 365)))
}

func TestPolicyDeactivate(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(validTerms(), now)

	later := now.Add(time.Hour)
	require.True(t, p.Deactivate(later))
	assert.False(t, p.IsActive)
	require.NotNil(t, p.DeactivatedAt)
	assert.Equal(t, later, *p.DeactivatedAt)
	assert.Equal(t, now, p.CreatedAt)

	assert.False(t, p.Deactivate(later.Add(time.Hour)))
	assert.Equal(t, later, *p.DeactivatedAt)
}

func TestPolicyClone(t *testing.T) {
	p := New(validTerms(), time.Now())
	p.Deactivate(time.Now())

	c := p.Clone()
	*c.DeactivatedAt = c.DeactivatedAt.Add(time.Hour)
	c.IsActive = true

	assert.False(t, p.IsActive)
	assert.NotEqual(t, *p.DeactivatedAt, *c.DeactivatedAt)
}

func TestListOptsPage(t *testing.T) {
	all := []*Policy{{ID: 1}, {ID: 2}, {ID: 3}}

	assert.Len(t, ListOpts{}.Page(all), 3)
	assert.Equal(t, int64(2), ListOpts{Offset: 1, Limit: 1}.Page(all)[0].ID)
	assert.Empty(t, ListOpts{Offset: 5}.Page(all))
	assert.Len(t, ListOpts{Offset: 1, Limit: 10}.Page(all), 2)
}
