package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/store/sqlite"
	"github.com/xraph/policymaker/store/storetest"
)

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformanceMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return open(t, ":memory:")
	})
}

func TestConformanceFile(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return open(t, filepath.Join(t.TempDir(), "policymaker.db"))
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := open(t, ":memory:")
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))

	var n int
	require.NoError(t, sqlitedriver.Unwrap(s.DB()).
		NewRaw(`SELECT COUNT(*) FROM grove_migrations WHERE "group" = ?`, "policymaker").
		Scan(ctx, &n))
	assert.Equal(t, len(sqlite.Migrations.Migrations()), n)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policymaker.db")

	s := open(t, path)
	created := policy.New(policy.Terms{
		CoverageAmount:     1000,
		InitialPremiumFee:  100,
		PremiumRate:        10,
		DurationDays:       365,
		PenaltyRatePercent: 5,
		GracePeriodMonths:  3,
	}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.CreatePolicy(ctx, created))
	require.NoError(t, s.Close())

	s = open(t, path)
	defer s.Close()
	got, err := s.GetPolicy(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.CoverageAmount, got.CoverageAmount)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "  ")
	assert.ErrorIs(t, err, policymaker.ErrInvalidInput)
}
