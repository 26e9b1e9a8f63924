package mongo

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

	ID                 int64      `grove:"id,pk"                bson:"_id"`
	CoverageAmount     int64      `grove:"coverage_amount"      bson:"coverage_amount"`
	InitialPremiumFee  int64      `grove:"initial_premium_fee"  bson:"initial_premium_fee"`
	PremiumRate        int64      `grove:"premium_rate"         bson:"premium_rate"`
	Currency           string     `grove:"currency"             bson:"currency"`
	DurationDays       int64      `grove:"duration_days"        bson:"duration_days"`
	PenaltyRatePercent int64      `grove:"penalty_rate_percent" bson:"penalty_rate_percent"`
	GracePeriodMonths  int64      `grove:"grace_period_months"  bson:"grace_period_months"`
	IsActive           bool       `grove:"is_active"            bson:"is_active"`
	DeactivatedAt      *time.Time `grove:"deactivated_at"       bson:"deactivated_at,omitempty"`
	CreatedAt          time.Time  `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"           bson:"updated_at"`
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

	PolicyID       int64     `grove:"policy_id,pk"     bson:"policy_id"`
	Payer          string    `grove:"payer,pk"         bson:"payer"`
	TotalPaid      int64     `grove:"total_paid"       bson:"total_paid"`
	Currency       string    `grove:"currency"         bson:"currency"`
	FirstPaymentAt time.Time `grove:"first_payment_at" bson:"first_payment_at"`
	LastPaymentAt  time.Time `grove:"last_payment_at"  bson:"last_payment_at"`
	PaymentCount   int64     `grove:"payment_count"    bson:"payment_count"`
}

func toPaymentModel(p *premium.Payment) *paymentModel {
	return &paymentModel{
		PolicyID:       p.PolicyID,
		Payer:          p.Payer,
		TotalPaid:      p.TotalPaid.Amount,
		Currency:       p.TotalPaid.Currency,
		FirstPaymentAt: p.FirstPaymentAt,
		LastPaymentAt:  p.LastPaymentAt,
		PaymentCount:   p.PaymentCount,
	}
}

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

type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
