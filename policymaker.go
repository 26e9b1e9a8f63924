package policymaker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/policymaker/access"
	"github.com/xraph/policymaker/id"
	"github.com/xraph/policymaker/plugin"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/types"
)

// TracerName is the instrumentation scope used for engine spans.
const TracerName = "github.com/xraph/policymaker"

// Guarded operation names, as passed to OnAccessDenied.
const (
	OpCreatePolicy = "create_policy"
	OpDeactivate   = "deactivate_policy"
)

// Engine is the policy lifecycle and premium accrual engine.
type Engine struct {
	store    store.Store
	policies policy.Store
	payments premium.Store
	guard    *access.Guard
	plugins  *plugin.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	currency string
}

// New creates an Engine over s whose guarded operations admit only admin.
func New(s store.Store, admin string, opts ...Option) (*Engine, error) {
	guard, err := access.New(admin)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    s,
		policies: store.Policies(s),
		payments: store.Payments(s),
		guard:    guard,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
		currency: types.DefaultCurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil {
			e.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithPluginTimeout bounds each plugin hook call. See plugin.DefaultTimeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithTracerProvider takes engine spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(TracerName)
	}
}

// WithDefaultCurrency sets the currency given to terms that name none.
func WithDefaultCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = types.NormalizeCurrency(currency)
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("policymaker started",
		"admin", e.guard.Admin(),
		"currency", e.currency,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Admin returns the administrator identity.
func (e *Engine) Admin() string { return e.guard.Admin() }

func (e *Engine) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "policymaker."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) authorize(ctx context.Context, caller, op string) error {
	if err := e.guard.Authorize(caller); err != nil {
		e.logger.Warn("access denied", "caller", caller, "operation", op)
		e.plugins.EmitAccessDenied(ctx, caller, op)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────
// Policy registry
// ──────────────────────────────────────────────────

// CreatePolicy validates terms and stores a new active policy created at now.
// Only the administrator may call it.
func (e *Engine) CreatePolicy(ctx context.Context, caller string, terms policy.Terms, now time.Time) (_ *policy.Policy, err error) {
	ctx, span := e.span(ctx, "CreatePolicy")
	defer func() { finish(span, err) }()

	if err := e.authorize(ctx, caller, OpCreatePolicy); err != nil {
		return nil, err
	}

	if strings.TrimSpace(terms.Currency) == "" {
		terms.Currency = e.currency
	}
	if err := validationError(terms.Validate()); err != nil {
		return nil, err
	}

	p := policy.New(terms, now)
	if err := e.policies.Create(ctx, p); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("policy.id", p.ID))

	e.plugins.EmitPolicyCreated(ctx, p)
	e.logger.Info("policy created",
		"policy_id", p.ID,
		"coverage", p.CoverageAmount.String(),
		"premium_rate", p.PremiumRate.String(),
	)

	return p.Clone(), nil
}

// validationError turns violations into ValidationErrors; several are joined.
func validationError(vs []policy.Violation) error {
	if len(vs) == 0 {
		return nil
	}
	errs := make([]error, len(vs))
	for i, v := range vs {
		errs[i] = ValidationError{Field: v.Field, Message: v.Message}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// GetPolicy returns the policy with the given ID.
func (e *Engine) GetPolicy(ctx context.Context, policyID int64) (*policy.Policy, error) {
	if policyID <= 0 {
		return nil, ErrPolicyNotFound
	}
	return e.policies.Get(ctx, policyID)
}

// Deactivate marks a policy inactive. Deactivating an inactive policy is a
// no-op. Only the administrator may call it.
func (e *Engine) Deactivate(ctx context.Context, caller string, policyID int64, now time.Time) (err error) {
	ctx, span := e.span(ctx, "Deactivate", attribute.Int64("policy.id", policyID))
	defer func() { finish(span, err) }()

	if err := e.authorize(ctx, caller, OpDeactivate); err != nil {
		return err
	}
	if policyID <= 0 {
		return ErrPolicyNotFound
	}

	changed, err := e.policies.Deactivate(ctx, policyID, now)
	if err != nil {
		return err
	}
	if !changed {
		e.logger.Debug("policy already inactive", "policy_id", policyID)
		return nil
	}

	p, err := e.policies.Get(ctx, policyID)
	if err != nil {
		return err
	}
	e.plugins.EmitPolicyDeactivated(ctx, p)
	e.logger.Info("policy deactivated", "policy_id", policyID)
	return nil
}

// ListPolicies returns policies ordered by ID.
func (e *Engine) ListPolicies(ctx context.Context, opts policy.ListOpts) ([]*policy.Policy, error) {
	return e.policies.List(ctx, opts)
}

// PolicyCount returns how many policies have ever been created.
func (e *Engine) PolicyCount(ctx context.Context) (int64, error) {
	return e.policies.Count(ctx)
}

// ──────────────────────────────────────────────────
// Premium ledger
// ──────────────────────────────────────────────────

// RecordPayment adds amount to payer's running total on an active policy.
// The first payment for a payer anchors premium accrual at now.
func (e *Engine) RecordPayment(ctx context.Context, policyID int64, payer string, amount types.Money, now time.Time) (_ *premium.Receipt, err error) {
	ctx, span := e.span(ctx, "RecordPayment",
		attribute.Int64("policy.id", policyID),
		attribute.String("payment.payer", payer),
	)
	defer func() { finish(span, err) }()

	payer = strings.TrimSpace(payer)
	if payer == "" {
		return nil, ErrInvalidInput
	}
	if !amount.IsPositive() {
		return nil, ErrAmountMustBePositive
	}
	if policyID <= 0 {
		return nil, ErrPolicyNotFound
	}
	amount.Currency = types.NormalizeCurrency(amount.Currency)

	pay, err := e.payments.Record(ctx, policyID, payer, amount, now)
	if err != nil {
		return nil, err
	}

	// Terms are immutable, so reading the policy after the write is safe.
	p, err := e.policies.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}

	prior := pay.TotalPaid.Subtract(amount)
	receipt := &premium.Receipt{
		ID:             id.NewPaymentID(),
		PolicyID:       policyID,
		Payer:          payer,
		Amount:         amount,
		PaidAt:         pay.LastPaymentAt,
		TotalPaid:      pay.TotalPaid,
		BecameClaimant: premium.IsClaimant(p, pay) && prior.LessThan(p.InitialPremiumFee),
	}

	e.plugins.EmitPaymentRecorded(ctx, receipt)
	if receipt.BecameClaimant {
		e.plugins.EmitClaimantQualified(ctx, policyID, payer, pay.TotalPaid)
		e.logger.Info("claimant qualified", "policy_id", policyID, "payer", payer)
	}
	e.logger.Debug("payment recorded",
		"policy_id", policyID,
		"payer", payer,
		"amount", amount.String(),
		"total_paid", pay.TotalPaid.String(),
	)

	return receipt, nil
}

// payment returns the policy and payer's record; the record is nil when the
// payer has never paid.
func (e *Engine) payment(ctx context.Context, policyID int64, payer string) (*policy.Policy, *premium.Payment, error) {
	p, err := e.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, nil, err
	}
	pay, err := e.payments.Get(ctx, policyID, strings.TrimSpace(payer))
	if errors.Is(err, ErrPaymentNotFound) {
		return p, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return p, pay, nil
}

// IsClaimant reports whether payer has paid at least the policy's initial premium fee.
func (e *Engine) IsClaimant(ctx context.Context, policyID int64, payer string) (bool, error) {
	p, pay, err := e.payment(ctx, policyID, payer)
	if err != nil {
		return false, err
	}
	return premium.IsClaimant(p, pay), nil
}

// TotalPaid returns payer's running total, zero when the payer never paid.
func (e *Engine) TotalPaid(ctx context.Context, policyID int64, payer string) (types.Money, error) {
	p, pay, err := e.payment(ctx, policyID, payer)
	if err != nil {
		return types.Money{}, err
	}
	if pay == nil {
		return types.Zero(p.Currency), nil
	}
	return pay.TotalPaid, nil
}

// GetPayment returns payer's payment record.
func (e *Engine) GetPayment(ctx context.Context, policyID int64, payer string) (*premium.Payment, error) {
	if policyID <= 0 {
		return nil, ErrPolicyNotFound
	}
	return e.payments.Get(ctx, policyID, strings.TrimSpace(payer))
}

// ListPayments returns every payer's record on a policy, ordered by payer.
func (e *Engine) ListPayments(ctx context.Context, policyID int64) ([]*premium.Payment, error) {
	if policyID <= 0 {
		return nil, ErrPolicyNotFound
	}
	return e.payments.List(ctx, policyID)
}

// ──────────────────────────────────────────────────
// Premium calculator
// ──────────────────────────────────────────────────

// PremiumDue returns the premium payer owes on a policy at now.
func (e *Engine) PremiumDue(ctx context.Context, policyID int64, payer string, now time.Time) (types.Money, error) {
	b, err := e.PremiumBreakdown(ctx, policyID, payer, now)
	if err != nil {
		return types.Money{}, err
	}
	return b.Due, nil
}

// PremiumBreakdown is PremiumDue with its derivation. It writes nothing.
func (e *Engine) PremiumBreakdown(ctx context.Context, policyID int64, payer string, now time.Time) (_ premium.Breakdown, err error) {
	ctx, span := e.span(ctx, "PremiumDue", attribute.Int64("policy.id", policyID))
	defer func() { finish(span, err) }()

	p, pay, err := e.payment(ctx, policyID, payer)
	if err != nil {
		return premium.Breakdown{}, err
	}

	b, err := premium.Calculate(p, pay, now)
	if err != nil {
		return premium.Breakdown{}, err
	}
	span.SetAttributes(
		attribute.Int64("premium.overdue_months", b.OverdueMonths),
		attribute.Int64("premium.due", b.Due.Amount),
	)

	e.plugins.EmitPremiumCalculated(ctx, policyID, strings.TrimSpace(payer), b)
	return b, nil
}
