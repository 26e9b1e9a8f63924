// Package audithook bridges policymaker lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit service. Callers inject a Recorder, a RecorderFunc
// adapter, or the bundled WriterRecorder at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/policymaker/access"
	"github.com/xraph/policymaker/id"
	"github.com/xraph/policymaker/plugin"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnPolicyCreated     = (*Extension)(nil)
	_ plugin.OnPolicyDeactivated = (*Extension)(nil)
	_ plugin.OnPaymentRecorded   = (*Extension)(nil)
	_ plugin.OnClaimantQualified = (*Extension)(nil)
	_ plugin.OnPremiumCalculated = (*Extension)(nil)
	_ plugin.OnAccessDenied      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	ID         id.AuditEventID `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	Category   string          `json:"category"`
	ResourceID string          `json:"resource_id,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Outcome    string          `json:"outcome"`
	Severity   string          `json:"severity"`
	Reason     string          `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges policymaker lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		enabled:  defaultActions(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// Enabled reports whether action is audited.
func (e *Extension) Enabled(action string) bool { return e.enabled[action] }

// ──────────────────────────────────────────────────
// Policy lifecycle hooks
// ──────────────────────────────────────────────────

// OnPolicyCreated implements plugin.OnPolicyCreated.
func (e *Extension) OnPolicyCreated(ctx context.Context, p *policy.Policy) error {
	return e.record(ctx, ActionPolicyCreated, SeverityInfo, OutcomeSuccess,
		ResourcePolicy, policyRef(p.ID), CategoryPolicy, "", nil,
		"coverage_amount", p.CoverageAmount.String(),
		"initial_premium_fee", p.InitialPremiumFee.String(),
		"premium_rate", p.PremiumRate.String(),
		"duration_days", p.DurationDays,
		"penalty_rate_percent", p.PenaltyRatePercent,
		"grace_period_months", p.GracePeriodMonths,
	)
}

// OnPolicyDeactivated implements plugin.OnPolicyDeactivated.
func (e *Extension) OnPolicyDeactivated(ctx context.Context, p *policy.Policy) error {
	kv := []any{"policy_id", p.ID}
	if p.DeactivatedAt != nil {
		kv = append(kv, "deactivated_at", p.DeactivatedAt.Format(time.RFC3339Nano))
	}
	return e.record(ctx, ActionPolicyDeactivated, SeverityWarning, OutcomeSuccess,
		ResourcePolicy, policyRef(p.ID), CategoryPolicy, "", nil, kv...)
}

// ──────────────────────────────────────────────────
// Premium hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, r *premium.Receipt) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, r.ID.String(), CategoryPayment, r.Payer, nil,
		"policy_id", r.PolicyID,
		"amount", r.Amount.String(),
		"total_paid", r.TotalPaid.String(),
		"became_claimant", r.BecameClaimant,
	)
}

// OnClaimantQualified implements plugin.OnClaimantQualified.
func (e *Extension) OnClaimantQualified(ctx context.Context, policyID int64, payer string, total types.Money) error {
	return e.record(ctx, ActionClaimantQualified, SeverityInfo, OutcomeSuccess,
		ResourcePolicy, policyRef(policyID), CategoryPayment, payer, nil,
		"policy_id", policyID,
		"total_paid", total.String(),
	)
}

// OnPremiumCalculated implements plugin.OnPremiumCalculated.
func (e *Extension) OnPremiumCalculated(ctx context.Context, policyID int64, payer string, b premium.Breakdown) error {
	return e.record(ctx, ActionPremiumCalculated, SeverityInfo, OutcomeSuccess,
		ResourcePremium, policyRef(policyID), CategoryPayment, payer, nil,
		"policy_id", policyID,
		"elapsed_months", b.ElapsedMonths,
		"overdue_months", b.OverdueMonths,
		"due", b.Due.String(),
	)
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDenied implements plugin.OnAccessDenied.
func (e *Extension) OnAccessDenied(ctx context.Context, caller, operation string) error {
	return e.record(ctx, ActionAccessDenied, SeverityCritical, OutcomeFailure,
		ResourceEngine, "", CategoryAccess, caller, access.ErrUnauthorized,
		"operation", operation,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func policyRef(policyID int64) string {
	return fmt.Sprintf("policy/%d", policyID)
}

// record builds and sends an audit event if the action is enabled.
// Recorder failures are logged, never returned.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category, actor string,
	err error,
	kvPairs ...any,
) error {
	if !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditEventID(),
		Timestamp:  types.Timestamp(e.now()),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
