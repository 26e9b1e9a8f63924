// Package postgres implements store.Store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	policystore "github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// compile-time interface check
var _ policystore.Store = (*Store)(nil)

// numeric_value_out_of_range
const codeOutOfRange = "22003"

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Payments share-lock their policy row, so they run in parallel with each
// other while deactivation waits for them. Running totals are incremented
// in SQL, so concurrent first payments by one payer cannot lose an update.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	closed atomic.Bool
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects a new pool to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("policymaker/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("policymaker/postgres: connect: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("policymaker/postgres: ping: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("policymaker/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("policymaker/postgres: %w: %w", policymaker.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check() error {
	if s.closed.Load() {
		return policymaker.ErrStoreClosed
	}
	return nil
}

// ==================== Policy Store ====================

func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	if err := s.check(); err != nil {
		return err
	}
	m := toPolicyModel(p)
	if err := s.pg.NewInsert(m).Returning("id").Scan(ctx, &m.ID); err != nil {
		return err
	}
	p.ID = m.ID
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, policyID int64) (*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	m := new(policyModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", policyID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, policymaker.ErrPolicyNotFound
		}
		return nil, err
	}
	return fromPolicyModel(m), nil
}

func (s *Store) ListPolicies(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var models []policyModel
	q := s.pg.NewSelect(&models)
	if opts.ActiveOnly {
		q = q.Where("is_active")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*policy.Policy, len(models))
	for i := range models {
		result[i] = fromPolicyModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeactivatePolicy(ctx context.Context, policyID int64, at time.Time) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	at = types.Timestamp(at)
	res, err := s.pg.NewUpdate((*policyModel)(nil)).
		Set("is_active = FALSE").
		Set("deactivated_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", policyID).
		Where("is_active").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CountPolicies(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.pg.NewSelect((*policyModel)(nil)).Count(ctx)
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	at = types.Timestamp(at)

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	pm := new(policyModel)
	err = tx.NewSelect(pm).
		Where("id = $1", policyID).
		ForShare().
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, policymaker.ErrPolicyNotFound
		}
		return nil, err
	}
	if !pm.IsActive {
		return nil, policymaker.ErrPolicyInactive
	}
	if amount.Currency != pm.Currency {
		return nil, policymaker.ErrCurrencyMismatch
	}

	m := new(paymentModel)
	err = tx.NewRaw(`
INSERT INTO policymaker_payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $5, 1)
ON CONFLICT (policy_id, payer) DO UPDATE SET
    total_paid      = policymaker_payments.total_paid + EXCLUDED.total_paid,
    last_payment_at = EXCLUDED.last_payment_at,
    payment_count   = policymaker_payments.payment_count + 1
RETURNING `+paymentColumns,
		policyID, payer, amount.Amount, amount.Currency, at,
	).Scan(ctx, m)
	if err != nil {
		if isOutOfRange(err) {
			return nil, policymaker.ErrAmountOverflow
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fromPaymentModel(m), nil
}

func (s *Store) GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	m := new(paymentModel)
	err := s.pg.NewSelect(m).
		Where("policy_id = $1", policyID).
		Where("payer = $2", payer).
		Scan(ctx)
	if err == nil {
		return fromPaymentModel(m), nil
	}
	if !isNoRows(err) {
		return nil, err
	}
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}
	return nil, policymaker.ErrPaymentNotFound
}

func (s *Store) ListPayments(ctx context.Context, policyID int64) ([]*premium.Payment, error) {
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}

	var models []paymentModel
	err := s.pg.NewSelect(&models).
		Where("policy_id = $1", policyID).
		OrderExpr(`payer COLLATE "C" ASC`).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*premium.Payment, len(models))
	for i := range models {
		result[i] = fromPaymentModel(&models[i])
	}
	return result, nil
}

// isNoRows checks for the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeOutOfRange
}
