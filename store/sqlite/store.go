// Package sqlite implements store.Store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	policystore "github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// compile-time interface check
var _ policystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// Write transactions begin IMMEDIATE, so SQLite's reserved lock orders
// concurrent writers; no lock is held in this process.
type Store struct {
	db     *grove.DB
	sdb    *sqlitedriver.SqliteDB
	closed atomic.Bool
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens the database at path. ":memory:" opens a private in-memory
// database on a single connection.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("policymaker/sqlite: %w: empty path", policymaker.ErrInvalidInput)
	}

	dsn := path
	var opts []driver.Option
	if path == ":memory:" {
		// Every new connection would see a fresh empty database.
		opts = append(opts, driver.WithPoolSize(1))
	} else {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	}

	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn, opts...); err != nil {
		return nil, fmt.Errorf("policymaker/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("policymaker/sqlite: open: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("policymaker/sqlite: ping: %w", err)
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
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("policymaker/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("policymaker/sqlite: %w: %w", policymaker.ErrMigrationFailed, err)
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

// Close closes the database connection.
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
	if err := s.sdb.NewInsert(m).Returning("id").Scan(ctx, &m.ID); err != nil {
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", policyID).
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
	q := s.sdb.NewSelect(&models)
	if opts.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	q = q.OrderExpr("id ASC")
	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT.
		q = q.Limit(math.MaxInt)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

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
	ms := toMillis(at)
	res, err := s.sdb.NewUpdate((*policyModel)(nil)).
		Set("is_active = ?", false).
		Set("deactivated_at = ?", ms).
		Set("updated_at = ?", ms).
		Where("id = ?", policyID).
		Where("is_active = ?", true).
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

	// Nothing changed: either already inactive or missing.
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) CountPolicies(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.sdb.NewSelect((*policyModel)(nil)).Count(ctx)
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	pm := new(policyModel)
	if err := tx.NewSelect(pm).Where("id = ?", policyID).Scan(ctx); err != nil {
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

	var pay *premium.Payment
	existing := new(paymentModel)
	err = tx.NewSelect(existing).
		Where("policy_id = ?", policyID).
		Where("payer = ?", payer).
		Scan(ctx)
	switch {
	case isNoRows(err):
		pay = &premium.Payment{PolicyID: policyID, Payer: payer}
	case err != nil:
		return nil, err
	default:
		pay = fromPaymentModel(existing)
	}

	if !premium.Apply(pay, amount, at) {
		return nil, policymaker.ErrAmountOverflow
	}

	if _, err := tx.NewInsert(toPaymentModel(pay)).
		OnConflict("(policy_id, payer) DO UPDATE").
		Set("total_paid = excluded.total_paid").
		Set("last_payment_at = excluded.last_payment_at").
		Set("payment_count = excluded.payment_count").
		Exec(ctx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pay, nil
}

func (s *Store) GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("policy_id = ?", policyID).
		Where("payer = ?", payer).
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
	err := s.sdb.NewSelect(&models).
		Where("policy_id = ?", policyID).
		OrderExpr("payer ASC").
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
