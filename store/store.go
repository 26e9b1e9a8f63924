// Package store defines the storage contract shared by every policymaker backend.
package store

import (
	"context"
	"time"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Store is the unified storage interface for policies and payments.
// The methods are declared explicitly rather than by embedding policy.Store
// and premium.Store, whose method names collide.
//
// Writes are serialized per key (policy ID, or policy ID and payer); there is
// no store-wide lock on the write path in any backend.
type Store interface {
	// Policy methods
	CreatePolicy(ctx context.Context, p *policy.Policy) error
	GetPolicy(ctx context.Context, policyID int64) (*policy.Policy, error)
	ListPolicies(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error)
	DeactivatePolicy(ctx context.Context, policyID int64, at time.Time) (bool, error)
	CountPolicies(ctx context.Context) (int64, error)

	// Payment methods
	RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error)
	GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error)
	ListPayments(ctx context.Context, policyID int64) ([]*premium.Payment, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Policies adapts a Store to policy.Store.
func Policies(s Store) policy.Store { return policyStore{s} }

// Payments adapts a Store to premium.Store.
func Payments(s Store) premium.Store { return paymentStore{s} }

type policyStore struct{ s Store }

func (a policyStore) Create(ctx context.Context, p *policy.Policy) error {
	return a.s.CreatePolicy(ctx, p)
}

func (a policyStore) Get(ctx context.Context, policyID int64) (*policy.Policy, error) {
	return a.s.GetPolicy(ctx, policyID)
}

func (a policyStore) List(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	return a.s.ListPolicies(ctx, opts)
}

func (a policyStore) Deactivate(ctx context.Context, policyID int64, at time.Time) (bool, error) {
	return a.s.DeactivatePolicy(ctx, policyID, at)
}

func (a policyStore) Count(ctx context.Context) (int64, error) {
	return a.s.CountPolicies(ctx)
}

type paymentStore struct{ s Store }

func (a paymentStore) Record(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	return a.s.RecordPayment(ctx, policyID, payer, amount, at)
}

func (a paymentStore) Get(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	return a.s.GetPayment(ctx, policyID, payer)
}

func (a paymentStore) List(ctx context.Context, policyID int64) ([]*premium.Payment, error) {
	return a.s.ListPayments(ctx, policyID)
}

