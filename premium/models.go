// Package premium tracks premium payments per payer and computes the premium
// currently owed on a policy.
package premium

import (
	"time"

	"github.com/xraph/policymaker/id"
	"github.com/xraph/policymaker/types"
)

// Payment is the running total for one (policy, payer) pair.
// FirstPaymentAt is set once, by the first payment, and anchors accrual.
type Payment struct {
	PolicyID       int64       `json:"policy_id"`
	Payer          string      `json:"payer"`
	TotalPaid      types.Money `json:"total_paid"`
	FirstPaymentAt time.Time   `json:"first_payment_at"`
	LastPaymentAt  time.Time   `json:"last_payment_at"`
	PaymentCount   int64       `json:"payment_count"`
}

// Apply folds one payment into p, creating the record on first use.
// It reports false when TotalPaid would overflow; p is then unchanged.
func Apply(p *Payment, amount types.Money, at time.Time) bool {
	at = types.Timestamp(at)
	if p.PaymentCount == 0 {
		p.TotalPaid = amount
		p.FirstPaymentAt = at
		p.LastPaymentAt = at
		p.PaymentCount = 1
		return true
	}
	total, ok := p.TotalPaid.CheckedAdd(amount)
	if !ok {
		return false
	}
	p.TotalPaid = total
	p.LastPaymentAt = at
	p.PaymentCount++
	return true
}

// Clone returns a copy of p.
func (p *Payment) Clone() *Payment {
	c := *p
	return &c
}

// Receipt acknowledges one recorded payment.
type Receipt struct {
	ID             id.PaymentID `json:"id"`
	PolicyID       int64        `json:"policy_id"`
	Payer          string       `json:"payer"`
	Amount         types.Money  `json:"amount"`
	PaidAt         time.Time    `json:"paid_at"`
	TotalPaid      types.Money  `json:"total_paid"`
	BecameClaimant bool         `json:"became_claimant"`
}
