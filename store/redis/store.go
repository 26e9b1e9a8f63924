// Package redis implements store.Store on Redis hashes.
//
// Keys, under a configurable prefix:
//
//	<prefix>:policy:seq              INCR counter for policy IDs
//	<prefix>:policies                sorted set of policy IDs (score = ID)
//	<prefix>:policy:<id>             policy hash
//	<prefix>:policy:<id>:payers      sorted set of payers (score 0, lexical order)
//	<prefix>:payment:<id>:<payer>    payment hash
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	policystore "github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "policymaker"

// compile-time interface check
var _ policystore.Store = (*Store)(nil)

// Store implements store.Store using Redis.
//
// Writes are optimistic transactions that WATCH only the keys they touch:
// a payment watches its policy and its own payment hash, so payments to
// different payers never conflict while a deactivation aborts and retries
// any payment racing it.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps a connected client.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to a redis:// URL.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("policymaker/redis: parse url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("policymaker/redis: instrument tracing: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("policymaker/redis: ping: %w", err)
	}
	return New(rdb, opts...), nil
}

// Client returns the underlying client for direct access.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

// Migrate is a no-op; Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error {
	return s.check()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) check() error {
	if s.closed.Load() {
		return policymaker.ErrStoreClosed
	}
	return nil
}

func (s *Store) seqKey() string      { return s.prefix + ":policy:seq" }
func (s *Store) policiesKey() string { return s.prefix + ":policies" }

func (s *Store) policyKey(policyID int64) string {
	return s.prefix + ":policy:" + strconv.FormatInt(policyID, 10)
}

func (s *Store) payersKey(policyID int64) string {
	return s.policyKey(policyID) + ":payers"
}

func (s *Store) paymentKey(policyID int64, payer string) string {
	return s.prefix + ":payment:" + strconv.FormatInt(policyID, 10) + ":" + payer
}

// watch runs fn as an optimistic transaction over keys, retrying until it
// commits or ctx ends.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ==================== Policy Store ====================

func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	if err := s.check(); err != nil {
		return err
	}
	policyID, err := s.rdb.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("policymaker/redis: allocate policy id: %w", err)
	}
	p.ID = policyID

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.policyKey(policyID), policyFields(p))
		pipe.ZAdd(ctx, s.policiesKey(), redis.Z{Score: float64(policyID), Member: policyID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("policymaker/redis: create policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, policyID int64) (*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.getPolicy(ctx, s.rdb, policyID)
}

func (s *Store) getPolicy(ctx context.Context, c redis.Cmdable, policyID int64) (*policy.Policy, error) {
	vals, err := c.HGetAll(ctx, s.policyKey(policyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("policymaker/redis: get policy: %w", err)
	}
	if len(vals) == 0 {
		return nil, policymaker.ErrPolicyNotFound
	}
	return parsePolicy(policyID, vals)
}

func (s *Store) ListPolicies(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ids, err := s.rdb.ZRange(ctx, s.policiesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("policymaker/redis: list policies: %w", err)
	}

	result := make([]*policy.Policy, 0, len(ids))
	for _, raw := range ids {
		policyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("policymaker/redis: list policies: bad id %q", raw)
		}
		p, err := s.getPolicy(ctx, s.rdb, policyID)
		if err != nil {
			return nil, err
		}
		if opts.ActiveOnly && !p.IsActive {
			continue
		}
		result = append(result, p)
	}
	return opts.Page(result), nil
}

func (s *Store) DeactivatePolicy(ctx context.Context, policyID int64, at time.Time) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	key := s.policyKey(policyID)

	var changed bool
	err := s.watch(ctx, func(tx *redis.Tx) error {
		changed = false
		p, err := s.getPolicy(ctx, tx, policyID)
		if err != nil {
			return err
		}
		if !p.Deactivate(at) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"is_active", "0",
				"deactivated_at", toMillis(*p.DeactivatedAt),
				"updated_at", toMillis(p.UpdatedAt),
			)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, key)
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *Store) CountPolicies(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.rdb.ZCard(ctx, s.policiesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("policymaker/redis: count policies: %w", err)
	}
	return n, nil
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	policyKey := s.policyKey(policyID)
	paymentKey := s.paymentKey(policyID, payer)

	var result *premium.Payment
	err := s.watch(ctx, func(tx *redis.Tx) error {
		p, err := s.getPolicy(ctx, tx, policyID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return policymaker.ErrPolicyInactive
		}
		if amount.Currency != p.Currency {
			return policymaker.ErrCurrencyMismatch
		}

		pay, err := s.getPayment(ctx, tx, policyID, payer)
		switch {
		case errors.Is(err, policymaker.ErrPaymentNotFound):
			pay = &premium.Payment{PolicyID: policyID, Payer: payer}
		case err != nil:
			return err
		}
		if !premium.Apply(pay, amount, at) {
			return policymaker.ErrAmountOverflow
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, paymentKey, paymentFields(pay))
			pipe.ZAdd(ctx, s.payersKey(policyID), redis.Z{Score: 0, Member: payer})
			return nil
		})
		if err == nil {
			result = pay
		}
		return err
	}, policyKey, paymentKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	pay, err := s.getPayment(ctx, s.rdb, policyID, payer)
	if !errors.Is(err, policymaker.ErrPaymentNotFound) {
		return pay, err
	}
	if _, err := s.getPolicy(ctx, s.rdb, policyID); err != nil {
		return nil, err
	}
	return nil, policymaker.ErrPaymentNotFound
}

func (s *Store) getPayment(ctx context.Context, c redis.Cmdable, policyID int64, payer string) (*premium.Payment, error) {
	vals, err := c.HGetAll(ctx, s.paymentKey(policyID, payer)).Result()
	if err != nil {
		return nil, fmt.Errorf("policymaker/redis: get payment: %w", err)
	}
	if len(vals) == 0 {
		return nil, policymaker.ErrPaymentNotFound
	}
	return parsePayment(policyID, payer, vals)
}

func (s *Store) ListPayments(ctx context.Context, policyID int64) ([]*premium.Payment, error) {
	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return nil, err
	}
	payers, err := s.rdb.ZRange(ctx, s.payersKey(policyID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("policymaker/redis: list payments: %w", err)
	}

	result := make([]*premium.Payment, 0, len(payers))
	for _, payer := range payers {
		pay, err := s.getPayment(ctx, s.rdb, policyID, payer)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, nil
}
