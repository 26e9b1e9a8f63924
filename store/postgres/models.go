package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// ==================== Policy models ====================

type policyModel struct {
	grove.BaseModel `grove:"table:policymaker_policies"`

	ID                 int64      `grove:"id,pk,autoincrement"`
	CoverageAmount     int64      `grove:"coverage_amount,notnull"`
	InitialPremiumFee  int64      `grove:"initial_premium_fee,notnull"`
	PremiumRate        int64      `grove:"premium_rate,notnull"`
	Currency           string     `grove:"currency,notnull"`
	DurationDays       int64      `grove:"duration_days,notnull"`
	PenaltyRatePercent int64      `grove:"penalty_rate_percent,notnull"`
	GracePeriodMonths  int64      `grove:"grace_period_months,notnull"`
	IsActive           bool       `grove:"is_active,notnull"`
	DeactivatedAt      *time.Time `grove:"deactivated_at"`
	CreatedAt          time.Time  `grove:"created_at,notnull"`
	UpdatedAt          time.Time  `grove:"updated_at,notnull"`
}

func toPolicyModel(p *policy.Policy) *policyModel {
	return &policyModel{
		ID:                 p.ID,
		CoverageAmount:     p.CoverageAmount.Amount,
		InitialPremiumFee:  p.InitialPremiumFee.Amount,
		PremiumRate:        p.PremiumRate.Amount,
		Currency:           p.Currency,
		DurationDays:       p.DurationDays,
		PenaltyRatePercent: p.PenaltyRatePercent,
		GracePeriodMonths:  p.GracePeriodMonths,
		IsActive:           p.IsActive,
		DeactivatedAt:      p.DeactivatedAt,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
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
	p.CreatedAt = m.CreatedAt.UTC()
	p.UpdatedAt = m.UpdatedAt.UTC()
	if m.DeactivatedAt != nil {
		at := m.DeactivatedAt.UTC()
		p.DeactivatedAt = &at
	}
	return p
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:policymaker_payments"`

	PolicyID       int64     `grove:"policy_id,pk"`
	Payer          string    `grove:"payer,pk"`
	TotalPaid      int64     `grove:"total_paid,notnull"`
	Currency       string    `grove:"currency,notnull"`
	FirstPaymentAt time.Time `grove:"first_payment_at,notnull"`
	LastPaymentAt  time.Time `grove:"last_payment_at,notnull"`
	PaymentCount   int64     `grove:"payment_count,notnull"`
}

// paymentColumns lists paymentModel's columns in field order, so a RETURNING
// row scans straight into the model.
const paymentColumns = `policy_id, payer, total_paid, currency, first_payment_at, last_payment_at, payment_count`

func fromPaymentModel(m *paymentModel) *premium.Payment {
	return &premium.Payment{
		PolicyID:       m.PolicyID,
		Payer:          m.Payer,
		TotalPaid:      types.New(m.TotalPaid, m.Currency),
		FirstPaymentAt: m.FirstPaymentAt.UTC(),
		LastPaymentAt:  m.LastPaymentAt.UTC(),
		PaymentCount:   m.PaymentCount,
	}
}
