// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func terms() policy.Terms {
	return policy.Terms{
		CoverageAmount:     1000,
		InitialPremiumFee:  100,
		PremiumRate:        10,
		DurationDays:       365,
		PenaltyRatePercent: 5,
		GracePeriodMonths:  3,
	}
}

func create(t *testing.T, s store.Store, at time.Time) *policy.Policy {
	t.Helper()
	p := policy.New(terms(), at)
	require.NoError(t, s.CreatePolicy(context.Background(), p))
	return p
}

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SequentialIDs", testSequentialIDs},
		{"GetPolicy", testGetPolicy},
		{"ListPolicies", testListPolicies},
		{"DeactivatePolicy", testDeactivatePolicy},
		{"RecordPayment", testRecordPayment},
		{"RecordPaymentRejects", testRecordPaymentRejects},
		{"RecordPaymentOverflow", testRecordPaymentOverflow},
		{"GetPayment", testGetPayment},
		{"ListPayments", testListPayments},
		{"ConcurrentPayments", testConcurrentPayments},
		{"ConcurrentDeactivateAndPayment", testConcurrentDeactivateAndPayment},
		{"Close", testClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testSequentialIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		p := create(t, s, base)
		assert.Equal(t, want, p.ID)
	}
	n, err := s.CountPolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func testGetPolicy(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := create(t, s, base)

	got, err := s.GetPolicy(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, types.USD(1000), got.CoverageAmount)
	assert.Equal(t, types.USD(100), got.InitialPremiumFee)
	assert.Equal(t, types.USD(10), got.PremiumRate)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, int64(365), got.DurationDays)
	assert.Equal(t, int64(5), got.PenaltyRatePercent)
	assert.Equal(t, int64(3), got.GracePeriodMonths)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.DeactivatedAt)
	assert.True(t, got.CreatedAt.Equal(base), "CreatedAt = %v", got.CreatedAt)

	_, err = s.GetPolicy(ctx, created.ID+1)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
	_, err = s.GetPolicy(ctx, 0)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
}

func testListPolicies(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		create(t, s, base.Add(time.Duration(i)*time.Hour))
	}
	_, err := s.DeactivatePolicy(ctx, 2, base)
	require.NoError(t, err)

	ids := func(ps []*policy.Policy) []int64 {
		out := make([]int64, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	all, err := s.ListPolicies(ctx, policy.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(all))

	active, err := s.ListPolicies(ctx, policy.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, ids(active))

	page, err := s.ListPolicies(ctx, policy.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids(page))

	tail, err := s.ListPolicies(ctx, policy.ListOpts{Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids(tail))
}

func testDeactivatePolicy(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)
	at := base.Add(24 * time.Hour)

	changed, err := s.DeactivatePolicy(ctx, p.ID, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.DeactivatePolicy(ctx, p.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "second deactivation must be a no-op")

	got, err := s.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeactivatedAt)
	assert.True(t, got.DeactivatedAt.Equal(at), "DeactivatedAt = %v", got.DeactivatedAt)

	_, err = s.DeactivatePolicy(ctx, 99, at)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
}

func testRecordPayment(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)
	first := base.Add(time.Hour)
	second := base.Add(48 * time.Hour)

	pay, err := s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(60), first)
	require.NoError(t, err)
	assert.Equal(t, types.USD(60), pay.TotalPaid)
	assert.Equal(t, int64(1), pay.PaymentCount)
	assert.True(t, pay.FirstPaymentAt.Equal(first))

	pay, err = s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(40), second)
	require.NoError(t, err)
	assert.Equal(t, types.USD(100), pay.TotalPaid)
	assert.Equal(t, int64(2), pay.PaymentCount)
	assert.True(t, pay.FirstPaymentAt.Equal(first), "first payment time must not move")
	assert.True(t, pay.LastPaymentAt.Equal(second))
	assert.Equal(t, p.ID, pay.PolicyID)
	assert.Equal(t, "0xAddr1", pay.Payer)
}

func testRecordPaymentRejects(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)

	_, err := s.RecordPayment(ctx, p.ID+1, "0xAddr1", types.USD(10), base)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)

	_, err = s.RecordPayment(ctx, p.ID, "0xAddr1", types.EUR(10), base)
	assert.ErrorIs(t, err, policymaker.ErrCurrencyMismatch)

	_, err = s.DeactivatePolicy(ctx, p.ID, base)
	require.NoError(t, err)
	_, err = s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(10), base)
	assert.ErrorIs(t, err, policymaker.ErrPolicyInactive)

	_, err = s.GetPayment(ctx, p.ID, "0xAddr1")
	assert.ErrorIs(t, err, policymaker.ErrPaymentNotFound, "rejected payments must leave no record")
}

func testRecordPaymentOverflow(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)

	_, err := s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(math.MaxInt64-10), base)
	require.NoError(t, err)

	_, err = s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(11), base)
	assert.ErrorIs(t, err, policymaker.ErrAmountOverflow)

	pay, err := s.GetPayment(ctx, p.ID, "0xAddr1")
	require.NoError(t, err)
	assert.Equal(t, types.USD(math.MaxInt64-10), pay.TotalPaid)
	assert.Equal(t, int64(1), pay.PaymentCount)
}

func testGetPayment(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)

	_, err := s.GetPayment(ctx, p.ID, "0xAddr1")
	assert.ErrorIs(t, err, policymaker.ErrPaymentNotFound)

	_, err = s.GetPayment(ctx, p.ID+1, "0xAddr1")
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)

	_, err = s.RecordPayment(ctx, p.ID, "0xAddr1", types.USD(25), base)
	require.NoError(t, err)

	pay, err := s.GetPayment(ctx, p.ID, "0xAddr1")
	require.NoError(t, err)
	assert.Equal(t, types.USD(25), pay.TotalPaid)

	_, err = s.GetPayment(ctx, p.ID, "0xAddr2")
	assert.ErrorIs(t, err, policymaker.ErrPaymentNotFound, "payments are per payer")
}

func testListPayments(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)
	other := create(t, s, base)

	for _, payer := range []string{"0xCarol", "0xAlice", "0xBob"} {
		_, err := s.RecordPayment(ctx, p.ID, payer, types.USD(5), base)
		require.NoError(t, err)
	}
	_, err := s.RecordPayment(ctx, other.ID, "0xDave", types.USD(5), base)
	require.NoError(t, err)

	pays, err := s.ListPayments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pays, 3)
	assert.Equal(t, "0xAlice", pays[0].Payer)
	assert.Equal(t, "0xBob", pays[1].Payer)
	assert.Equal(t, "0xCarol", pays[2].Payer)

	empty := create(t, s, base)
	pays, err = s.ListPayments(ctx, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, pays)

	_, err = s.ListPayments(ctx, 999)
	assert.ErrorIs(t, err, policymaker.ErrPolicyNotFound)
}

func testConcurrentPayments(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)

	const (
		payers   = 4
		perPayer = 10
	)
	var wg sync.WaitGroup
	errs := make(chan error, payers*perPayer)
	for i := 0; i < payers; i++ {
		payer := fmt.Sprintf("0xPayer%d", i)
		for j := 0; j < perPayer; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RecordPayment(ctx, p.ID, payer, types.USD(3), base)
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for i := 0; i < payers; i++ {
		pay, err := s.GetPayment(ctx, p.ID, fmt.Sprintf("0xPayer%d", i))
		require.NoError(t, err)
		assert.Equal(t, types.USD(3*perPayer), pay.TotalPaid)
		assert.Equal(t, int64(perPayer), pay.PaymentCount)
	}
}

func testConcurrentDeactivateAndPayment(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := create(t, s, base)

	const (
		payments     = 30
		deactivators = 2
	)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
		changed   int
	)
	start := make(chan struct{})
	payErrs := make(chan error, payments)
	deactErrs := make(chan error, deactivators)

	for i := 0; i < payments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.RecordPayment(ctx, p.ID, "0xAlice", types.USD(2), base)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
			payErrs <- err
		}()
		if i == payments/2 {
			for j := 0; j < deactivators; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := s.DeactivatePolicy(ctx, p.ID, base.Add(time.Hour))
					if ok {
						mu.Lock()
						changed++
						mu.Unlock()
					}
					deactErrs <- err
				}()
			}
		}
	}
	close(start)
	wg.Wait()
	close(payErrs)
	close(deactErrs)

	for err := range deactErrs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, changed)
	for err := range payErrs {
		if err != nil {
			assert.ErrorIs(t, err, policymaker.ErrPolicyInactive)
		}
	}

	_, err := s.RecordPayment(ctx, p.ID, "0xAlice", types.USD(2), base)
	assert.ErrorIs(t, err, policymaker.ErrPolicyInactive)

	got, err := s.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	pay, err := s.GetPayment(ctx, p.ID, "0xAlice")
	if succeeded == 0 {
		assert.ErrorIs(t, err, policymaker.ErrPaymentNotFound)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, succeeded, pay.PaymentCount)
	assert.Equal(t, types.USD(2*succeeded), pay.TotalPaid)
}

func testClose(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), policymaker.ErrStoreClosed)
	_, err := s.GetPolicy(ctx, 1)
	assert.ErrorIs(t, err, policymaker.ErrStoreClosed)
}
