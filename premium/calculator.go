package premium

import (
	"errors"
	"math"
	"time"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/types"
)

// MonthLength is the fixed accrual month. Calendar months are not used.
const MonthLength = 30 * policy.DayLength

// ErrOverflow is returned when a premium does not fit in the money type.
var ErrOverflow = errors.New("policymaker: amount overflow")

// Breakdown shows how a premium was derived.
type Breakdown struct {
	Anchor        time.Time   `json:"anchor"`
	ElapsedMonths int64       `json:"elapsed_months"`
	OverdueMonths int64       `json:"overdue_months"`
	Base          types.Money `json:"base"`
	Penalty       types.Money `json:"penalty"`
	Due           types.Money `json:"due"`
}

// Anchor is the accrual start: the first payment when there is one,
// otherwise policy creation.
func Anchor(p *policy.Policy, pay *Payment) time.Time {
	if pay != nil && pay.PaymentCount > 0 {
		return pay.FirstPaymentAt
	}
	return p.CreatedAt
}

// ElapsedMonths counts whole 30-day months from anchor to now. A now before
// the anchor counts as zero.
func ElapsedMonths(anchor, now time.Time) int64 {
	if !now.After(anchor) {
		return 0
	}
	// time.Duration saturates at about 292 years; milliseconds do not.
	return (now.UnixMilli() - anchor.UnixMilli()) / MonthLength.Milliseconds()
}

// Calculate computes the premium due on p for the payer whose record is pay
// (nil when the payer has never paid). Within the grace period the nominal
// rate is due; every month past it adds PenaltyRatePercent of the rate,
// without compounding. Division truncates.
func Calculate(p *policy.Policy, pay *Payment, now time.Time) (Breakdown, error) {
	b := Breakdown{
		Anchor:  Anchor(p, pay),
		Base:    p.PremiumRate,
		Penalty: types.Zero(p.PremiumRate.Currency),
	}
	b.ElapsedMonths = ElapsedMonths(b.Anchor, now)
	b.Due = b.Base

	if b.ElapsedMonths <= p.GracePeriodMonths {
		return b, nil
	}
	b.OverdueMonths = b.ElapsedMonths - p.GracePeriodMonths

	if p.PenaltyRatePercent > 0 && b.OverdueMonths > math.MaxInt64/p.PenaltyRatePercent {
		return Breakdown{}, ErrOverflow
	}
	penalty, ok := p.PremiumRate.MulDiv(p.PenaltyRatePercent*b.OverdueMonths, 100)
	if !ok {
		return Breakdown{}, ErrOverflow
	}
	due, ok := b.Base.CheckedAdd(penalty)
	if !ok {
		return Breakdown{}, ErrOverflow
	}
	b.Penalty = penalty
	b.Due = due
	return b, nil
}

// Due is Calculate without the breakdown.
func Due(p *policy.Policy, pay *Payment, now time.Time) (types.Money, error) {
	b, err := Calculate(p, pay, now)
	if err != nil {
		return types.Money{}, err
	}
	return b.Due, nil
}

// IsClaimant reports whether pay covers the policy's initial premium fee.
func IsClaimant(p *policy.Policy, pay *Payment) bool {
	if pay == nil || pay.PaymentCount == 0 {
		return false
	}
	return pay.TotalPaid.GreaterOrEqual(p.InitialPremiumFee)
}
