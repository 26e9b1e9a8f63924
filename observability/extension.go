// Package observability provides a metrics extension for policymaker that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/policymaker/plugin"
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnPolicyCreated     = (*MetricsExtension)(nil)
	_ plugin.OnPolicyDeactivated = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded   = (*MetricsExtension)(nil)
	_ plugin.OnClaimantQualified = (*MetricsExtension)(nil)
	_ plugin.OnPremiumCalculated = (*MetricsExtension)(nil)
	_ plugin.OnAccessDenied      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics. Names are dot-separated.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a policymaker plugin to track policies and payments.
type MetricsExtension struct {
	factory MetricFactory

	// Policy metrics
	PolicyCreated     Counter
	PolicyDeactivated Counter

	// Premium metrics
	PaymentsRecorded   Counter
	PaymentAmount      Histogram
	ClaimantsQualified Counter
	PremiumCalculated  Counter
	PremiumPenalized   Counter
	OverdueMonths      Histogram

	// Access metrics
	AccessDenied Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PolicyCreated:     factory.Counter("policymaker.policy.created"),
		PolicyDeactivated: factory.Counter("policymaker.policy.deactivated"),

		PaymentsRecorded:   factory.Counter("policymaker.payment.recorded"),
		PaymentAmount:      factory.Histogram("policymaker.payment.amount"),
		ClaimantsQualified: factory.Counter("policymaker.claimant.qualified"),
		PremiumCalculated:  factory.Counter("policymaker.premium.calculated"),
		PremiumPenalized:   factory.Counter("policymaker.premium.penalized"),
		OverdueMonths:      factory.Histogram("policymaker.premium.overdue_months"),

		AccessDenied: factory.Counter("policymaker.access.denied"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnPolicyCreated implements plugin.OnPolicyCreated.
func (m *MetricsExtension) OnPolicyCreated(_ context.Context, _ *policy.Policy) error {
	m.PolicyCreated.Inc()
	return nil
}

// OnPolicyDeactivated implements plugin.OnPolicyDeactivated.
func (m *MetricsExtension) OnPolicyDeactivated(_ context.Context, _ *policy.Policy) error {
	m.PolicyDeactivated.Inc()
	return nil
}

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
// Amounts are observed in the smallest currency unit.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, r *premium.Receipt) error {
	m.PaymentsRecorded.Inc()
	m.PaymentAmount.Observe(float64(r.Amount.Amount))
	return nil
}

// OnClaimantQualified implements plugin.OnClaimantQualified.
func (m *MetricsExtension) OnClaimantQualified(_ context.Context, _ int64, _ string, _ types.Money) error {
	m.ClaimantsQualified.Inc()
	return nil
}

// OnPremiumCalculated implements plugin.OnPremiumCalculated.
func (m *MetricsExtension) OnPremiumCalculated(_ context.Context, _ int64, _ string, b premium.Breakdown) error {
	m.PremiumCalculated.Inc()
	if b.OverdueMonths > 0 {
		m.PremiumPenalized.Inc()
		m.OverdueMonths.Observe(float64(b.OverdueMonths))
	}
	return nil
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (m *MetricsExtension) OnAccessDenied(_ context.Context, _, _ string) error {
	m.AccessDenied.Inc()
	return nil
}
