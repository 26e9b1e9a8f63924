// Package memory is an in-process store with per-key locking. Nothing is
// persisted; it backs tests and single-process embeddings.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	policystore "github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// compile-time interface check
var _ policystore.Store = (*Store)(nil)

// Store keeps one entry per policy. Each entry has its own lock, and each
// payer record inside it has another, so unrelated policies and payers never
// contend.
type Store struct {
	seq      atomic.Int64
	policies sync.Map // int64 -> *policyEntry
	closed   atomic.Bool
}

type policyEntry struct {
	mu     sync.RWMutex // guards p; payments hold it shared
	p      *policy.Policy
	idxMu  sync.Mutex // guards payers
	payers map[string]*paymentEntry
}

type paymentEntry struct {
	mu  sync.Mutex
	pay premium.Payment
}

func New() *Store {
	return &Store{}
}

// Policy Store implementation

func (s *Store) CreatePolicy(_ context.Context, p *policy.Policy) error {
	if s.closed.Load() {
		return policymaker.ErrStoreClosed
	}
	p.ID = s.seq.Add(1)
	s.policies.Store(p.ID, &policyEntry{
		p:      p.Clone(),
		payers: make(map[string]*paymentEntry),
	})
	return nil
}

func (s *Store) entry(policyID int64) (*policyEntry, error) {
	if s.closed.Load() {
		return nil, policymaker.ErrStoreClosed
	}
	v, ok := s.policies.Load(policyID)
	if !ok {
		return nil, policymaker.ErrPolicyNotFound
	}
	return v.(*policyEntry), nil
}

func (s *Store) GetPolicy(_ context.Context, policyID int64) (*policy.Policy, error) {
	e, err := s.entry(policyID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.p.Clone(), nil
}

func (s *Store) ListPolicies(_ context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	if s.closed.Load() {
		return nil, policymaker.ErrStoreClosed
	}
	result := make([]*policy.Policy, 0)
	s.policies.Range(func(_, v any) bool {
		e := v.(*policyEntry)
		e.mu.RLock()
		if !opts.ActiveOnly || e.p.IsActive {
			result = append(result, e.p.Clone())
		}
		e.mu.RUnlock()
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return opts.Page(result), nil
}

func (s *Store) DeactivatePolicy(_ context.Context, policyID int64, at time.Time) (bool, error) {
	e, err := s.entry(policyID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Deactivate(at), nil
}

func (s *Store) CountPolicies(_ context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, policymaker.ErrStoreClosed
	}
	return s.seq.Load(), nil
}

// Payment Store implementation

func (s *Store) RecordPayment(_ context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*premium.Payment, error) {
	e, err := s.entry(policyID)
	if err != nil {
		return nil, err
	}

	// Shared lock: payments may run in parallel, deactivation waits.
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.p.IsActive {
		return nil, policymaker.ErrPolicyInactive
	}
	if amount.Currency != e.p.Currency {
		return nil, policymaker.ErrCurrencyMismatch
	}

	pe := e.payer(policyID, payer)
	pe.mu.Lock()
	defer pe.mu.Unlock()

	next := pe.pay
	if !premium.Apply(&next, amount, at) {
		return nil, policymaker.ErrAmountOverflow
	}
	pe.pay = next
	return next.Clone(), nil
}

// payer returns the record for payer, creating an empty one on first use.
func (e *policyEntry) payer(policyID int64, payer string) *paymentEntry {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	pe, ok := e.payers[payer]
	if !ok {
		pe = &paymentEntry{pay: premium.Payment{PolicyID: policyID, Payer: payer}}
		e.payers[payer] = pe
	}
	return pe
}

func (s *Store) GetPayment(_ context.Context, policyID int64, payer string) (*premium.Payment, error) {
	e, err := s.entry(policyID)
	if err != nil {
		return nil, err
	}

	e.idxMu.Lock()
	pe, ok := e.payers[payer]
	e.idxMu.Unlock()
	if !ok {
		return nil, policymaker.ErrPaymentNotFound
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	if pe.pay.PaymentCount == 0 {
		return nil, policymaker.ErrPaymentNotFound
	}
	return pe.pay.Clone(), nil
}

func (s *Store) ListPayments(_ context.Context, policyID int64) ([]*premium.Payment, error) {
	e, err := s.entry(policyID)
	if err != nil {
		return nil, err
	}

	e.idxMu.Lock()
	entries := make([]*paymentEntry, 0, len(e.payers))
	for _, pe := range e.payers {
		entries = append(entries, pe)
	}
	e.idxMu.Unlock()

	result := make([]*premium.Payment, 0, len(entries))
	for _, pe := range entries {
		pe.mu.Lock()
		if pe.pay.PaymentCount > 0 {
			result = append(result, pe.pay.Clone())
		}
		pe.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Payer < result[j].Payer })
	return result, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	if s.closed.Load() {
		return policymaker.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
