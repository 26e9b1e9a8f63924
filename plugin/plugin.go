// Package plugin provides an extensible plugin system for the policy engine.
// Plugins hook into lifecycle events; they observe, they never veto.
package plugin

import (
	"context"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *policymaker.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Policy hooks
// ──────────────────────────────────────────────────

// OnPolicyCreated is called after a policy is persisted.
type OnPolicyCreated interface {
	Plugin
	OnPolicyCreated(ctx context.Context, p *policy.Policy) error
}

// OnPolicyDeactivated is called when a policy goes from active to inactive.
// Repeated deactivations do not fire it.
type OnPolicyDeactivated interface {
	Plugin
	OnPolicyDeactivated(ctx context.Context, p *policy.Policy) error
}

// ──────────────────────────────────────────────────
// Premium hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called after a payment is applied.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, r *premium.Receipt) error
}

// OnClaimantQualified is called when a payment lifts a payer's total to
// the policy's initial premium fee.
type OnClaimantQualified interface {
	Plugin
	OnClaimantQualified(ctx context.Context, policyID int64, payer string, total types.Money) error
}

// OnPremiumCalculated is called after every premium computation.
type OnPremiumCalculated interface {
	Plugin
	OnPremiumCalculated(ctx context.Context, policyID int64, payer string, b premium.Breakdown) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDenied is called when a non-administrator attempts a guarded operation.
type OnAccessDenied interface {
	Plugin
	OnAccessDenied(ctx context.Context, caller, operation string) error
}
