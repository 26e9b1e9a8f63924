package audithook

import (
	"log/slog"
	"time"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		e.now = now
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, every action except ActionPremiumCalculated is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// defaultActions returns the actions audited out of the box. Premium
// calculations are read-only and frequent, so they are opt-in.
func defaultActions() map[string]bool {
	return map[string]bool{
		ActionPolicyCreated:     true,
		ActionPolicyDeactivated: true,
		ActionPaymentRecorded:   true,
		ActionClaimantQualified: true,
		ActionAccessDenied:      true,
	}
}

// AllActions returns every action the extension can emit.
func AllActions() []string {
	return []string{
		ActionPolicyCreated,
		ActionPolicyDeactivated,
		ActionPaymentRecorded,
		ActionClaimantQualified,
		ActionPremiumCalculated,
		ActionAccessDenied,
	}
}
