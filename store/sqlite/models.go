package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Timestamps are stored as Unix milliseconds in UTC.

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// ==================== Policy models ====================

type policyModel struct {
	grove.BaseModel `grove:"table:policymaker_policies"`

	ID                 int64  `grove:"id,pk,autoincrement"`
	CoverageAmount     int64  `grove:"coverage_amount,notnull"`
	InitialPremiumFee  int64  `grove:"initial_premium_fee,notnull"`
	PremiumRate        int64  `grove:"premium_rate,notnull"`
	Currency           string `grove:"currency,notnull"`
	DurationDays       int64  `grove:"duration_days,notnull"`
	PenaltyRatePercent int64  `grove:"penalty_rate_percent,notnull"`
	GracePeriodMonths  int64  `grove:"grace_period_months,notnull"`
	IsActive           bool   `grove:"is_active,notnull"`
	DeactivatedAt      *int64 `grove:"deactivated_at"`
	CreatedAt          int64  `grove:"created_at,notnull"`
	UpdatedAt          int64  `grove:"updated_at,notnull"`
}

func toPolicyModel(p *policy.Policy) *policyModel {
	m := &policyModel{
		ID:                 p.ID,
		CoverageAmount:     p.CoverageAmount.Amount,
		InitialPremiumFee:  p.InitialPremiumFee.Amount,
		PremiumRate:        p.PremiumRate.Amount,
		Currency:           p.Currency,
		DurationDays:       p.DurationDays,
		PenaltyRatePercent: p.PenaltyRatePercent,
		GracePeriodMonths:  p.GracePeriodMonths,
		IsActive:           p.IsActive,
		CreatedAt:          toMillis(p.CreatedAt),
		UpdatedAt:          toMillis(p.UpdatedAt),
	}
	if p.DeactivatedAt != nil {
		ms := toMillis(*p.DeactivatedAt)
		m.DeactivatedAt = &ms
	}
	return m
}

func fromPolicyModel(m *policyModel) *policy.Policy {
	p := &policy.Policy{
		ID:                 m.ID,
		CoverageAmount:     types.New(m.CoverageAmount, m.Currency),
		InitialPremiumFee:  types.New(m.InitialPremiumFee, m.Currency),
		PremiumRate:        types.New(m.PremiumRate, m.Currency),
		Currency:           m.Currency,
		DurationDays:       m.DurationDays,
		PenaltyRatePercent: m.PenaltyRatePercent,
		GracePeriodMonths:  m.GracePeriodMonths,
		IsActive:           m.IsActive,
	}
	p.CreatedAt = fromMillis(m.CreatedAt)
	p.UpdatedAt = fromMillis(m.UpdatedAt)
	if m.DeactivatedAt != nil {
		at := fromMillis(*m.DeactivatedAt)
		p.DeactivatedAt = &at
	}
	return p
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:policymaker_payments"`

	PolicyID       int64  `grove:"policy_id,pk"`
	Payer          string `grove:"payer,pk"`
	TotalPaid      int64  `grove:"total_paid,notnull"`
	Currency       string `grove:"currency,notnull"`
	FirstPaymentAt int64  `grove:"first_payment_at,notnull"`
	LastPaymentAt  int64  `grove:"last_payment_at,notnull"`
	PaymentCount   int64  `grove:"payment_count,notnull"`
}

func toPaymentModel(p *premium.Payment) *paymentModel {
	return &paymentModel{
		PolicyID:       p.PolicyID,
		Payer:          p.Payer,
		TotalPaid:      p.TotalPaid.Amount,
		Currency:       p.TotalPaid.Currency,
		FirstPaymentAt: toMillis(p.FirstPaymentAt),
		LastPaymentAt:  toMillis(p.LastPaymentAt),
		PaymentCount:   p.PaymentCount,
	}
}

func fromPaymentModel(m *paymentModel) *premium.Payment {
	return &premium.Payment{
		PolicyID:       m.PolicyID,
		Payer:          m.Payer,
		TotalPaid:      types.New(m.TotalPaid, m.Currency),
		FirstPaymentAt: fromMillis(m.FirstPaymentAt),
		LastPaymentAt:  fromMillis(m.LastPaymentAt),
		PaymentCount:   m.PaymentCount,
	}
}
