package premium

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testPolicy(rate, penalty, grace int64) *policy.Policy {
	p := policy.New(policy.Terms{
		CoverageAmount:     100,
		InitialPremiumFee:  20,
		PremiumRate:        rate,
		DurationDays:       365,
		PenaltyRatePercent: penalty,
		GracePeriodMonths:  grace,
	}, t0)
	p.ID = 1
	return p
}

func paidAt(at time.Time, amount int64) *Payment {
	pay := &Payment{PolicyID: 1, Payer: "alice"}
	Apply(pay, types.USD(amount), at)
	return pay
}

func months(n int64) time.Duration { return time.Duration(n) * MonthLength }

func TestElapsedMonths(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"same instant", t0, 0},
		{"before anchor", t0.Add(-months(3)), 0},
		{"one second short of a month", t0.Add(MonthLength - time.Second), 0},
		{"exactly one month", t0.Add(MonthLength), 1},
		{"seven months", t0.Add(months(7)), 7},
		{"calendar year is 12 accrual months", t0.AddDate(1, 0, 0), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedMonths(t0, tt.now))
		})
	}
}

func TestElapsedMonthsBeyondDurationRange(t *testing.T) {
	tests := []struct {
		name   string
		anchor time.Time
		now    time.Time
		want   int64
	}{
		// 118338 days
		{"324 years", time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), t0, 3944},
		// 182621 days
		{"500 years", time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC), 6087},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ElapsedMonths(tt.anchor, tt.now))
		})
	}
}

func TestDue(t *testing.T) {
	tests := []struct {
		name    string
		rate    int64
		penalty int64
		grace   int64
		elapsed time.Duration
		want    int64
	}{
		{"inside grace", 10, 20, 6, months(5), 10},
		{"last grace month", 10, 20, 6, months(6), 10},
		{"one month overdue", 10, 20, 6, months(7), 12},
		{"three months overdue", 10, 20, 6, months(9), 16},
		{"no grace", 1000, 5, 0, months(1), 1050},
		{"zero penalty never grows", 10, 0, 0, months(40), 10},
		{"truncating penalty", 7, 10, 0, months(1), 7},
		{"penalty above 100 percent", 10, 150, 1, months(3), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPolicy(tt.rate, tt.penalty, tt.grace)
			got, err := Due(p, paidAt(t0, 20), t0.Add(tt.elapsed))
			require.NoError(t, err)
			assert.Equal(t, types.USD(tt.want), got)
		})
	}
}

func TestDueAnchorsOnCreationWithoutPayment(t *testing.T) {
	p := testPolicy(10, 20, 6)

	got, err := Due(p, nil, t0.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, types.USD(12), got)

	assert.Equal(t, t0, Anchor(p, nil))
	assert.Equal(t, t0, Anchor(p, &Payment{}))
}

func TestDueAnchorsOnFirstPayment(t *testing.T) {
	p := testPolicy(10, 20, 6)
	first := t0.Add(months(2))
	pay := paidAt(first, 10)
	Apply(pay, types.USD(10), first.Add(months(3)))

	assert.Equal(t, first, Anchor(p, pay))

	// seven months after creation is only five after the first payment
	got, err := Due(p, pay, t0.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, types.USD(10), got)

	got, err = Due(p, pay, first.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, types.USD(12), got)
}

func TestDueStrictlyIncreasesWhenOverdue(t *testing.T) {
	p := testPolicy(1000, 3, 2)
	pay := paidAt(t0, 20)

	prev, err := Due(p, pay, t0.Add(months(2)))
	require.NoError(t, err)
	for m := int64(3); m <= 60; m++ {
		got, err := Due(p, pay, t0.Add(months(m)))
		require.NoError(t, err)
		require.Truef(t, prev.LessThan(got), "month %d: %v not above %v", m, got, prev)
		prev = got
	}
}

func TestDueIsPure(t *testing.T) {
	p := testPolicy(10, 20, 6)
	pay := paidAt(t0, 20)
	now := t0.Add(months(11))

	first, err := Due(p, pay, now)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Due(p, pay, now)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, types.USD(20), pay.TotalPaid)
}

func TestCalculateBreakdown(t *testing.T) {
	p := testPolicy(10, 20, 6)
	b, err := Calculate(p, paidAt(t0, 20), t0.Add(months(8)+time.Hour))
	require.NoError(t, err)

	assert.Equal(t, t0, b.Anchor)
	assert.Equal(t, int64(8), b.ElapsedMonths)
	assert.Equal(t, int64(2), b.OverdueMonths)
	assert.Equal(t, types.USD(10), b.Base)
	assert.Equal(t, types.USD(4), b.Penalty)
	assert.Equal(t, types.USD(14), b.Due)
}

func TestCalculateOverflow(t *testing.T) {
	p := testPolicy(math.MaxInt64, 100, 0)
	_, err := Due(p, paidAt(t0, 20), t0.Add(months(1)))
	assert.ErrorIs(t, err, ErrOverflow)

	p = testPolicy(10, math.MaxInt64, 0)
	_, err = Due(p, paidAt(t0, 20), t0.Add(months(2)))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestApply(t *testing.T) {
	pay := &Payment{PolicyID: 1, Payer: "alice"}
	require.True(t, Apply(pay, types.USD(5), t0))
	require.True(t, Apply(pay, types.USD(7), t0.Add(time.Hour)))
	require.True(t, Apply(pay, types.USD(8), t0.Add(2*time.Hour)))

	assert.Equal(t, types.USD(20), pay.TotalPaid)
	assert.Equal(t, t0, pay.FirstPaymentAt)
	assert.Equal(t, t0.Add(2*time.Hour), pay.LastPaymentAt)
	assert.Equal(t, int64(3), pay.PaymentCount)

	assert.False(t, Apply(pay, types.USD(math.MaxInt64), t0.Add(3*time.Hour)))
	assert.Equal(t, types.USD(20), pay.TotalPaid)
	assert.Equal(t, int64(3), pay.PaymentCount)
}

func TestIsClaimant(t *testing.T) {
	p := testPolicy(10, 20, 6)

	assert.False(t, IsClaimant(p, nil))
	assert.False(t, IsClaimant(p, paidAt(t0, 19)))
	assert.True(t, IsClaimant(p, paidAt(t0, 20)))
	assert.True(t, IsClaimant(p, paidAt(t0, 25)))
}
