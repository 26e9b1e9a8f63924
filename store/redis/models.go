package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Hash values are decimal strings; timestamps are Unix milliseconds.

func toMillis(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 10)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func policyFields(p *policy.Policy) map[string]any {
	return map[string]any{
		"coverage_amount":      p.CoverageAmount.Amount,
		"initial_premium_fee":  p.InitialPremiumFee.Amount,
		"premium_rate":         p.PremiumRate.Amount,
		"currency":             p.Currency,
		"duration_days":        p.DurationDays,
		"penalty_rate_percent": p.PenaltyRatePercent,
		"grace_period_months":  p.GracePeriodMonths,
		"is_active":            boolField(p.IsActive),
		"created_at":           toMillis(p.CreatedAt),
		"updated_at":           toMillis(p.UpdatedAt),
	}
}

func paymentFields(p *premium.Payment) map[string]any {
	return map[string]any{
		"total_paid":       p.TotalPaid.Amount,
		"currency":         p.TotalPaid.Currency,
		"first_payment_at": toMillis(p.FirstPaymentAt),
		"last_payment_at":  toMillis(p.LastPaymentAt),
		"payment_count":    p.PaymentCount,
	}
}

// fieldReader collects the first parse failure so decoding reads linearly.
type fieldReader struct {
	vals map[string]string
	err  error
}

func (r *fieldReader) readInt(name string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(r.vals[name], 10, 64)
	if err != nil {
		r.err = fmt.Errorf("policymaker/redis: field %s: %w", name, err)
	}
	return v
}

func (r *fieldReader) readTime(name string) time.Time {
	return time.UnixMilli(r.readInt(name)).UTC()
}

func parsePolicy(policyID int64, vals map[string]string) (*policy.Policy, error) {
	r := &fieldReader{vals: vals}
	currency := vals["currency"]
	p := &policy.Policy{
		ID:                 policyID,
		CoverageAmount:     types.New(r.readInt("coverage_amount"), currency),
		InitialPremiumFee:  types.New(r.readInt("initial_premium_fee"), currency),
		PremiumRate:        types.New(r.readInt("premium_rate"), currency),
		Currency:           currency,
		DurationDays:       r.readInt("duration_days"),
		PenaltyRatePercent: r.readInt("penalty_rate_percent"),
		GracePeriodMonths:  r.readInt("grace_period_months"),
		IsActive:           vals["is_active"] == "1",
	}
	p.CreatedAt = r.readTime("created_at")
	p.UpdatedAt = r.readTime("updated_at")
	if _, ok := vals["deactivated_at"]; ok {
		at := r.readTime("deactivated_at")
		p.DeactivatedAt = &at
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

func parsePayment(policyID int64, payer string, vals map[string]string) (*premium.Payment, error) {
	r := &fieldReader{vals: vals}
	p := &premium.Payment{
		PolicyID:       policyID,
		Payer:          payer,
		TotalPaid:      types.New(r.readInt("total_paid"), vals["currency"]),
		FirstPaymentAt: r.readTime("first_payment_at"),
		LastPaymentAt:  r.readTime("last_payment_at"),
		PaymentCount:   r.readInt("payment_count"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}
