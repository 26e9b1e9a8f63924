// Package policy holds the insurance policy model and its validation rules.
package policy

import (
	"time"

	"github.com/xraph/policymaker/types"
)

// DayLength is the length of one policy day.
const DayLength = 24 * time.Hour

// Policy is an insurance term sheet. Policies are never deleted; deactivation
// only flips IsActive.
type Policy struct {
	types.Entity
	ID                 int64       `json:"id"`
	CoverageAmount     types.Money `json:"coverage_amount"`
	InitialPremiumFee  types.Money `json:"initial_premium_fee"`
	PremiumRate        types.Money `json:"premium_rate"`
	Currency           string      `json:"currency"`
	DurationDays       int64       `json:"duration_days"`
	PenaltyRatePercent int64       `json:"penalty_rate_percent"`
	GracePeriodMonths  int64       `json:"grace_period_months"`
	IsActive           bool        `json:"is_active"`
	DeactivatedAt      *time.Time  `json:"deactivated_at,omitempty"`
}

// New builds an active, unnumbered policy from terms. The store assigns ID.
func New(t Terms, now time.Time) *Policy {
	currency := types.NormalizeCurrency(t.Currency)
	return &Policy{
		Entity:             types.NewEntity(now),
		CoverageAmount:     types.New(t.CoverageAmount, currency),
		InitialPremiumFee:  types.New(t.InitialPremiumFee, currency),
		PremiumRate:        types.New(t.PremiumRate, currency),
		Currency:           currency,
		DurationDays:       t.DurationDays,
		PenaltyRatePercent: t.PenaltyRatePercent,
		GracePeriodMonths:  t.GracePeriodMonths,
		IsActive:           true,
	}
}

// ExpiresAt is CreatedAt plus DurationDays.
func (p *Policy) ExpiresAt() time.Time {
	return p.CreatedAt.Add(time.Duration(p.DurationDays) * DayLength)
}

// IsExpired reports whether the validity window has passed at now.
func (p *Policy) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}

// Deactivate marks the policy inactive at now. It reports false when the
// policy was already inactive, in which case nothing changes.
func (p *Policy) Deactivate(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	at := types.Timestamp(now)
	p.IsActive = false
	p.DeactivatedAt = &at
	p.Touch(at)
	return true
}

// Clone returns a deep copy so stores never hand out their own records.
func (p *Policy) Clone() *Policy {
	c := *p
	if p.DeactivatedAt != nil {
		at := *p.DeactivatedAt
		c.DeactivatedAt = &at
	}
	return &c
}

// ListOpts filters and pages ListPolicies. Results are ordered by ID.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Page applies Offset and Limit to an ID-ordered slice.
func (o ListOpts) Page(all []*Policy) []*Policy {
	start := o.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + o.Limit
	if o.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
