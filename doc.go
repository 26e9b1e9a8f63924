// Package policymaker is an insurance policy lifecycle and premium accrual
// engine for Go applications.
//
// It is a library, not a service. An administrator creates policies, payers
// pay premiums against them, and the engine answers who holds claimant status
// and how much premium is currently due. It provides:
//
//   - Sequentially numbered policies that are deactivated, never deleted
//   - Per-payer running premium totals with a fixed first-payment anchor
//   - Deterministic premium calculation with a linear late penalty
//   - A single administrator guarding policy creation and deactivation
//   - Memory, SQLite, PostgreSQL, MongoDB and Redis stores
//   - Lifecycle plugins for auditing and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/policymaker"
//	    "github.com/xraph/policymaker/store/memory"
//	)
//
//	engine, err := policymaker.New(memory.New(), "0xOwner")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	p, err := engine.CreatePolicy(ctx, "0xOwner", policy.Terms{
//	    CoverageAmount:     100,
//	    InitialPremiumFee:  20,
//	    PremiumRate:        10,
//	    DurationDays:       365,
//	    PenaltyRatePercent: 20,
//	    GracePeriodMonths:  6,
//	}, now)
//
//	_, err = engine.RecordPayment(ctx, p.ID, "0xAddr1", policymaker.USD(20), now)
//	ok, err := engine.IsClaimant(ctx, p.ID, "0xAddr1") // true
//
// # Time
//
// The engine never reads the wall clock. Every operation that depends on time
// takes now from the caller, which keeps premium calculation reproducible.
// A month is exactly 30 days.
//
// # Premiums
//
// Accrual is anchored at the payer's first payment, or at policy creation when
// the payer has not paid. Within the grace period the nominal rate is due.
// Each month past it adds PenaltyRatePercent of the rate:
//
//	due = rate + rate*penalty*overdueMonths/100
//
// All monetary calculations use integer arithmetic in the smallest currency
// unit. Intermediate products are computed exactly and division truncates.
//
// # Concurrency
//
// Writes are serialized per key: a policy ID, or a policy ID and payer.
// No store takes a global lock on the write path.
package policymaker
