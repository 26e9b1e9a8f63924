package policymaker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/store/memory"
	"github.com/xraph/policymaker/types"
)

const (
	owner = "0xOwner"
	payer = "0xAddr1"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func months(n int) time.Duration { return time.Duration(n) * policymaker.MonthLength }

// standardTerms: coverage=100, fee=20, rate=10, duration=365, penalty=20, grace=6.
func standardTerms() policy.Terms {
	return policy.Terms{
		CoverageAmount:     100,
		InitialPremiumFee:  20,
		PremiumRate:        10,
		DurationDays:       365,
		PenaltyRatePercent: 20,
		GracePeriodMonths:  6,
	}
}

type events struct {
	mu          sync.Mutex
	created     []int64
	deactivated []int64
	payments    []*premium.Receipt
	claimants   []string
	calculated  int
	denied      []string
}

func (e *events) Name() string { return "events" }

func (e *events) OnPolicyCreated(_ context.Context, p *policy.Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, p.ID)
	return nil
}

func (e *events) OnPolicyDeactivated(_ context.Context, p *policy.Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deactivated = append(e.deactivated, p.ID)
	return nil
}

func (e *events) OnPaymentRecorded(_ context.Context, r *premium.Receipt) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payments = append(e.payments, r)
	return nil
}

func (e *events) OnClaimantQualified(_ context.Context, policyID int64, payer string, _ types.Money) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimants = append(e.claimants, fmt.Sprintf("%d/%s", policyID, payer))
	return nil
}

func (e *events) OnPremiumCalculated(context.Context, int64, string, premium.Breakdown) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calculated++
	return nil
}

func (e *events) OnAccessDenied(_ context.Context, caller, op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.denied = append(e.denied, caller+":"+op)
	return nil
}

func newEngine(t *testing.T, opts ...policymaker.Option) (*policymaker.Engine, *events) {
	t.Helper()
	ev := &events{}
	opts = append([]policymaker.Option{
		policymaker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		policymaker.WithPlugin(ev),
	}, opts...)

	e, err := policymaker.New(memory.New(), owner, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e, ev
}

func createStandardPolicy(t *testing.T, e *policymaker.Engine) *policy.Policy {
	t.Helper()
	p, err := e.CreatePolicy(context.Background(), owner, standardTerms(), t0)
	require.NoError(t, err)
	return p
}

func TestNewRequiresAdmin(t *testing.T) {
	_, err := policymaker.New(memory.New(), " ")
	assert.ErrorIs(t, err, policymaker.ErrNoAdmin)
}

func TestCreateAndGetPolicy(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()

	p := createStandardPolicy(t, e)
	assert.Equal(t, int64(1), p.ID)

	got, err := e.GetPolicy(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(365), got.DurationDays)
	assert.True(t, got.IsActive)
	assert.Equal(t, policymaker.USD(100), got.CoverageAmount)
	assert.Equal(t, policymaker.USD(20), got.InitialPremiumFee)
	assert.Equal(t, policymaker.USD(10), got.PremiumRate)
	assert.Equal(t, int64(20), got.PenaltyRatePercent)
	assert.Equal(t, int64(6), got.GracePeriodMonths)
	assert.True(t, got.CreatedAt.Equal(t0))

	assert.Equal(t, []int64{1}, ev.created)
}

func TestPayingInitialFeeMakesClaimant(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	r, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(20), t0)
	require.NoError(t, err)
	assert.True(t, r.BecameClaimant)
	assert.False(t, r.ID.IsNil())
	assert.Equal(t, policymaker.USD(20), r.TotalPaid)

	ok, err := e.IsClaimant(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.True(t, ok)

	total, err := e.TotalPaid(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(20), total)

	assert.Len(t, ev.payments, 1)
	assert.Equal(t, []string{"1/" + payer}, ev.claimants)
}

func TestPremiumDuePenalizedAfterGrace(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)
	_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(20), t0)
	require.NoError(t, err)

	due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(12), due)
	assert.True(t, p.PremiumRate.LessThan(due))

	b, err := e.PremiumBreakdown(ctx, p.ID, payer, t0.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.ElapsedMonths)
	assert.Equal(t, int64(1), b.OverdueMonths)
	assert.Equal(t, policymaker.USD(2), b.Penalty)
}

func TestPremiumDueWithinGrace(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)
	_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(20), t0)
	require.NoError(t, err)

	due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(5)))
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(10), due)
}

func TestEtherAmountsInGwei(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	ether := func(n int64) types.Money { return types.New(n*types.GweiPerEther, "eth") }

	terms := policy.Terms{
		CoverageAmount:     100 * types.GweiPerEther,
		InitialPremiumFee:  20 * types.GweiPerEther,
		PremiumRate:        10 * types.GweiPerEther,
		DurationDays:       365,
		PenaltyRatePercent: 20,
		GracePeriodMonths:  6,
		Currency:           "ETH",
	}
	p, err := e.CreatePolicy(ctx, owner, terms, t0)
	require.NoError(t, err)
	assert.Equal(t, ether(100), p.CoverageAmount)

	_, err = e.RecordPayment(ctx, p.ID, payer, ether(19), t0)
	require.NoError(t, err)
	r, err := e.RecordPayment(ctx, p.ID, payer, ether(1), t0)
	require.NoError(t, err)
	assert.True(t, r.BecameClaimant)
	assert.Equal(t, ether(20), r.TotalPaid)
	assert.Len(t, ev.claimants, 1)

	due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(8)))
	require.NoError(t, err)
	assert.Equal(t, ether(14), due)
	assert.Equal(t, "ETH 14.000000000", due.String())
}

func TestCreatePolicyRejectsInvalidTerms(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()

	terms := standardTerms()
	terms.CoverageAmount = 0
	_, err := e.CreatePolicy(ctx, owner, terms, t0)
	require.ErrorIs(t, err, policymaker.ErrInvalidPolicyTerms)

	var verr policymaker.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "coverage_amount", verr.Field)

	n, err := e.PolicyCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ev.created)
}

func TestInvalidTermsTable(t *testing.T) {
	e, _ := newEngine(t)

	tests := []struct {
		name  string
		edit  func(*policy.Terms)
		field string
	}{
		{"zero fee", func(t *policy.Terms) { t.InitialPremiumFee = 0 }, "initial_premium_fee"},
		{"negative rate", func(t *policy.Terms) { t.PremiumRate = -1 }, "premium_rate"},
		{"zero duration", func(t *policy.Terms) { t.DurationDays = 0 }, "duration_days"},
		{"negative penalty", func(t *policy.Terms) { t.PenaltyRatePercent = -5 }, "penalty_rate_percent"},
		{"negative grace", func(t *policy.Terms) { t.GracePeriodMonths = -1 }, "grace_period_months"},
		{"bad currency", func(t *policy.Terms) { t.Currency = "dollars" }, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := standardTerms()
			tt.edit(&terms)
			_, err := e.CreatePolicy(context.Background(), owner, terms, t0)
			require.ErrorIs(t, err, policymaker.ErrInvalidPolicyTerms)

			var verr policymaker.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSeveralViolationsAreJoined(t *testing.T) {
	e, _ := newEngine(t)
	terms := standardTerms()
	terms.CoverageAmount = 0
	terms.DurationDays = 0

	_, err := e.CreatePolicy(context.Background(), owner, terms, t0)
	require.ErrorIs(t, err, policymaker.ErrInvalidPolicyTerms)
	assert.Contains(t, err.Error(), "coverage_amount")
	assert.Contains(t, err.Error(), "duration_days")
}

func TestCreatePolicyRequiresAdmin(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()

	_, err := e.CreatePolicy(ctx, "0xAddr1", standardTerms(), t0)
	assert.ErrorIs(t, err, policymaker.ErrUnauthorized)

	n, err := e.PolicyCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "state must be unchanged")
	assert.Equal(t, []string{"0xAddr1:" + policymaker.OpCreatePolicy}, ev.denied)

	// Guard runs before validation.
	bad := standardTerms()
	bad.CoverageAmount = 0
	_, err = e.CreatePolicy(ctx, "0xAddr1", bad, t0)
	assert.ErrorIs(t, err, policymaker.ErrUnauthorized)
}

func TestDeactivate(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	assert.ErrorIs(t, e.Deactivate(ctx, payer, p.ID, t0), policymaker.ErrUnauthorized)
	assert.ErrorIs(t, e.Deactivate(ctx, owner, 42, t0), policymaker.ErrPolicyNotFound)

	require.NoError(t, e.Deactivate(ctx, owner, p.ID, t0.Add(time.Hour)))
	require.NoError(t, e.Deactivate(ctx, owner, p.ID, t0.Add(2*time.Hour)), "deactivation is idempotent")
	assert.Equal(t, []int64{p.ID}, ev.deactivated, "only the transition is announced")

	got, err := e.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeactivatedAt)
	assert.True(t, got.DeactivatedAt.Equal(t0.Add(time.Hour)))
	assert.True(t, got.CreatedAt.Equal(t0), "CreatedAt never changes")

	_, err = e.RecordPayment(ctx, p.ID, payer, policymaker.USD(20), t0)
	assert.ErrorIs(t, err, policymaker.ErrPolicyInactive)

	due, err := e.PremiumDue(ctx, p.ID, payer, t0)
	require.NoError(t, err, "inactive policies still answer premium queries")
	assert.Equal(t, policymaker.USD(10), due)

	// IDs are never reused.
	next := createStandardPolicy(t, e)
	assert.Equal(t, p.ID+1, next.ID)
}

func TestRecordPaymentRejects(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	tests := []struct {
		name     string
		policyID int64
		payer    string
		amount   types.Money
		err      error
	}{
		{"zero amount", p.ID, payer, policymaker.USD(0), policymaker.ErrAmountMustBePositive},
		{"negative amount", p.ID, payer, policymaker.USD(-5), policymaker.ErrAmountMustBePositive},
		{"empty payer", p.ID, "  ", policymaker.USD(5), policymaker.ErrInvalidInput},
		{"unknown policy", 99, payer, policymaker.USD(5), policymaker.ErrPolicyNotFound},
		{"zero policy id", 0, payer, policymaker.USD(5), policymaker.ErrPolicyNotFound},
		{"wrong currency", p.ID, payer, policymaker.EUR(5), policymaker.ErrCurrencyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordPayment(ctx, tt.policyID, tt.payer, tt.amount, t0)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, policymaker.IsCallerError(err))
		})
	}

	total, err := e.TotalPaid(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.Equal(t, policymaker.Zero("usd"), total, "rejected payments leave no trace")
	assert.Empty(t, ev.payments)
}

func TestTotalsAccumulateAndAnchorIsFixed(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	amounts := []int64{3, 7, 5, 11}
	var sum int64
	for i, a := range amounts {
		sum += a
		_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(a), t0.Add(months(i)))
		require.NoError(t, err)
	}

	pay, err := e.GetPayment(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(sum), pay.TotalPaid)
	assert.True(t, pay.FirstPaymentAt.Equal(t0))
	assert.Equal(t, int64(len(amounts)), pay.PaymentCount)

	// Anchor stays at the first payment: 7 months after t0 is overdue by one.
	due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(7)))
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(12), due)
}

func TestClaimantIsMonotonic(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	ok, err := e.IsClaimant(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.False(t, ok, "no record, no claim")

	steps := []struct {
		amount   int64
		claimant bool
		became   bool
	}{
		{5, false, false},
		{10, false, false},
		{5, true, true},
		{1, true, false},
	}
	for _, s := range steps {
		r, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(s.amount), t0)
		require.NoError(t, err)
		assert.Equal(t, s.became, r.BecameClaimant)

		ok, err := e.IsClaimant(ctx, p.ID, payer)
		require.NoError(t, err)
		assert.Equal(t, s.claimant, ok)
	}
	assert.Len(t, ev.claimants, 1)

	ok, err = e.IsClaimant(ctx, p.ID, "0xSomeoneElse")
	require.NoError(t, err)
	assert.False(t, ok, "claimant status is per payer")

	_, err = e.IsClaimant(ctx, 77, payer)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
}

func TestPremiumDueWithoutPaymentAnchorsAtCreation(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(8)))
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(14), due)

	again, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(8)))
	require.NoError(t, err)
	assert.Equal(t, due, again, "premium queries are pure")

	total, err := e.TotalPaid(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.Equal(t, policymaker.Zero("usd"), total)
	assert.Equal(t, 2, ev.calculated)

	_, err = e.PremiumDue(ctx, 3, payer, t0)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
}

func TestPremiumDueStrictlyIncreases(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	prev, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(6)))
	require.NoError(t, err)
	for m := 7; m <= 30; m++ {
		due, err := e.PremiumDue(ctx, p.ID, payer, t0.Add(months(m)))
		require.NoError(t, err)
		assert.True(t, prev.LessThan(due), "month %d: %v <= %v", m, due, prev)
		prev = due
	}
}

func TestDefaultCurrency(t *testing.T) {
	e, _ := newEngine(t, policymaker.WithDefaultCurrency("EUR"))
	ctx := context.Background()

	p := createStandardPolicy(t, e)
	assert.Equal(t, "eur", p.Currency)
	assert.Equal(t, policymaker.EUR(10), p.PremiumRate)

	_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(20), t0)
	assert.ErrorIs(t, err, policymaker.ErrCurrencyMismatch)

	_, err = e.RecordPayment(ctx, p.ID, payer, types.New(20, " EUR "), t0)
	require.NoError(t, err)

	total, err := e.TotalPaid(ctx, 1, "0xNobody")
	require.NoError(t, err)
	assert.Equal(t, policymaker.Zero("eur"), total)
}

func TestListing(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createStandardPolicy(t, e)
	}
	require.NoError(t, e.Deactivate(ctx, owner, 2, t0))

	active, err := e.ListPolicies(ctx, policy.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, int64(1), active[0].ID)
	assert.Equal(t, int64(3), active[1].ID)

	n, err := e.PolicyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, who := range []string{"0xB", "0xA"} {
		_, err := e.RecordPayment(ctx, 1, who, policymaker.USD(1), t0)
		require.NoError(t, err)
	}
	pays, err := e.ListPayments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pays, 2)
	assert.Equal(t, "0xA", pays[0].Payer)

	_, err = e.GetPayment(ctx, 1, "0xC")
	assert.ErrorIs(t, err, policymaker.ErrPaymentNotFound)
	assert.True(t, policymaker.IsNotFound(err))
}

func TestConcurrentPaymentsSamePayer(t *testing.T) {
	e, ev := newEngine(t)
	ctx := context.Background()
	p := createStandardPolicy(t, e)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(2), t0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := e.TotalPaid(ctx, p.ID, payer)
	require.NoError(t, err)
	assert.Equal(t, policymaker.USD(2*n), total)
	assert.Len(t, ev.claimants, 1, "exactly one payment crosses the fee")
}

func TestSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e, _ := newEngine(t, policymaker.WithTracerProvider(tp))
	ctx := context.Background()

	p := createStandardPolicy(t, e)
	_, err := e.RecordPayment(ctx, p.ID, payer, policymaker.USD(0), t0)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "policymaker.CreatePolicy", spans[0].Name)
	assert.Equal(t, "policymaker.RecordPayment", spans[1].Name)
	assert.Len(t, spans[1].Events, 1, "the failure is recorded on the span")
}
