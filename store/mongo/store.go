// Package mongo implements store.Store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	policystore "github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// Collection name constants.
const (
	colPolicies = "policymaker_policies"
	colPayments = "policymaker_payments"
	colCounters = "policymaker_counters"
)

const policySeq = "policies"

// compile-time interface check
var _ policystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Payments run in a multi-document transaction that also bumps the policy's
// payment_seq, so a concurrent deactivation conflicts with the payment and
// one of the two is retried. Transactions need a replica set or sharded
// cluster; a standalone server rejects RecordPayment.
type Store struct {
	db     *grove.DB
	mdb    *mongodriver.MongoDB
	closed atomic.Bool
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, mongodriver.WithDatabase(database)); err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("policymaker/mongo: connect: %w", err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close()
		return nil, fmt.Errorf("policymaker/mongo: connect: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all policymaker collections.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("policymaker/mongo: migrate %s indexes: %w: %w", col, policymaker.ErrMigrationFailed, err)
		}
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

// Close disconnects the client.
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

	var c counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": policySeq},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return fmt.Errorf("policymaker/mongo: allocate policy id: %w", err)
	}

	p.ID = c.Seq
	if _, err := s.mdb.NewInsert(toPolicyModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("policymaker/mongo: create policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, policyID int64) (*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var m policyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": policyID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, policymaker.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("policymaker/mongo: get policy: %w", err)
	}
	return fromPolicyModel(&m), nil
}

func (s *Store) ListPolicies(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var models []policyModel
	filter := bson.M{}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("policymaker/mongo: list policies: %w", err)
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
	res, err := s.mdb.NewUpdate((*policyModel)(nil)).
		Filter(bson.M{"_id": policyID, "is_active": true}).
		Set("is_active", false).
		Set("deactivated_at", at).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("policymaker/mongo: deactivate policy: %w", err)
	}
	if res.MatchedCount() == 1 {
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
	n, err := s.mdb.NewFind((*policyModel)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("policymaker/mongo: count policies: %w", err)
	}
	return n, nil
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	at = types.Timestamp(at)

	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return nil, fmt.Errorf("policymaker/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return s.recordPaymentTx(ctx, policyID, payer, amount, at)
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("policymaker/mongo: record payment: %w", err)
	}
	return res.(*premium.Payment), nil
}

// recordPaymentTx runs inside a session transaction. The payment_seq bump
// write-locks the policy document for the rest of the transaction.
func (s *Store) recordPaymentTx(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	var pm policyModel
	err := s.mdb.Collection(colPolicies).FindOneAndUpdate(ctx,
		bson.M{"_id": policyID},
		bson.M{"$inc": bson.M{"payment_seq": int64(1)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&pm)
	if err != nil {
		if isNoDocuments(err) {
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
	var existing paymentModel
	err = s.mdb.NewFind(&existing).
		Filter(bson.M{"policy_id": policyID, "payer": payer}).
		Scan(ctx)
	switch {
	case isNoDocuments(err):
		pay = &premium.Payment{PolicyID: policyID, Payer: payer}
	case err != nil:
		return nil, err
	default:
		pay = fromPaymentModel(&existing)
	}

	if !premium.Apply(pay, amount, at) {
		return nil, policymaker.ErrAmountOverflow
	}

	_, err = s.mdb.NewUpdate(toPaymentModel(pay)).
		Filter(bson.M{"policy_id": policyID, "payer": payer}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return pay, nil
}

func (s *Store) GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"policy_id": policyID, "payer": payer}).
		Scan(ctx)
	if err == nil {
		return fromPaymentModel(&m), nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("policymaker/mongo: get payment: %w", err)
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"policy_id": policyID}).
		Sort(bson.D{{Key: "payer", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("policymaker/mongo: list payments: %w", err)
	}

	result := make([]*premium.Payment, len(models))
	for i := range models {
		result[i] = fromPaymentModel(&models[i])
	}
	return result, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func isDomainError(err error) bool {
	return errors.Is(err, policymaker.ErrPolicyNotFound) ||
		errors.Is(err, policymaker.ErrPolicyInactive) ||
		errors.Is(err, policymaker.ErrCurrencyMismatch) ||
		errors.Is(err, policymaker.ErrAmountOverflow)
}

// migrationIndexes returns the index definitions for all policymaker collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPolicies: {
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "policy_id", Value: 1}, {Key: "payer", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
