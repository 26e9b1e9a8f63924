package redis_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/store/redis"
	"github.com/xraph/policymaker/store/storetest"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return redis.New(client, opts...), mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := newStore(t)
		return s
	})
}

func TestKeysUsePrefix(t *testing.T) {
	s, mr := newStore(t, redis.WithPrefix("pm"))
	defer s.Close()

	ctx := context.Background()
	p := policy.New(policy.Terms{
		CoverageAmount:    1000,
		InitialPremiumFee: 100,
		PremiumRate:       10,
		DurationDays:      30,
	}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.CreatePolicy(ctx, p))

	assert.True(t, mr.Exists("pm:policy:seq"))
	assert.True(t, mr.Exists("pm:policy:1"))
	assert.Equal(t, "1", mr.HGet("pm:policy:1", "is_active"))
	assert.Equal(t, "usd", mr.HGet("pm:policy:1", "currency"))
}
