package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onPolicyCreated     []OnPolicyCreated
	onPolicyDeactivated []OnPolicyDeactivated
	onPaymentRecorded   []OnPaymentRecorded
	onClaimantQualified []OnClaimantQualified
	onPremiumCalculated []OnPremiumCalculated
	onAccessDenied      []OnAccessDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPolicyCreated); ok {
		r.onPolicyCreated = append(r.onPolicyCreated, v)
	}
	if v, ok := p.(OnPolicyDeactivated); ok {
		r.onPolicyDeactivated = append(r.onPolicyDeactivated, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}
	if v, ok := p.(OnClaimantQualified); ok {
		r.onClaimantQualified = append(r.onClaimantQualified, v)
	}
	if v, ok := p.(OnPremiumCalculated); ok {
		r.onPremiumCalculated = append(r.onPremiumCalculated, v)
	}
	if v, ok := p.(OnAccessDenied); ok {
		r.onAccessDenied = append(r.onAccessDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", Implements(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnPolicyCreated", reflect.TypeOf((*OnPolicyCreated)(nil)).Elem()},
	{"OnPolicyDeactivated", reflect.TypeOf((*OnPolicyDeactivated)(nil)).Elem()},
	{"OnPaymentRecorded", reflect.TypeOf((*OnPaymentRecorded)(nil)).Elem()},
	{"OnClaimantQualified", reflect.TypeOf((*OnClaimantQualified)(nil)).Elem()},
	{"OnPremiumCalculated", reflect.TypeOf((*OnPremiumCalculated)(nil)).Elem()},
	{"OnAccessDenied", reflect.TypeOf((*OnAccessDenied)(nil)).Elem()},
}

// Implements lists the hook interfaces p satisfies.
func Implements(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in hooks, logging failures. Hook errors
// never reach the caller of the engine operation.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := hooks(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitPolicyCreated emits a policy created event.
func (r *Registry) EmitPolicyCreated(ctx context.Context, pol *policy.Policy) {
	emit(ctx, r, "OnPolicyCreated", func(r *Registry) []OnPolicyCreated { return r.onPolicyCreated },
		func(p OnPolicyCreated) error { return p.OnPolicyCreated(ctx, pol.Clone()) })
}

// EmitPolicyDeactivated emits a policy deactivated event.
func (r *Registry) EmitPolicyDeactivated(ctx context.Context, pol *policy.Policy) {
	emit(ctx, r, "OnPolicyDeactivated", func(r *Registry) []OnPolicyDeactivated { return r.onPolicyDeactivated },
		func(p OnPolicyDeactivated) error { return p.OnPolicyDeactivated(ctx, pol.Clone()) })
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, receipt *premium.Receipt) {
	emit(ctx, r, "OnPaymentRecorded", func(r *Registry) []OnPaymentRecorded { return r.onPaymentRecorded },
		func(p OnPaymentRecorded) error {
			c := *receipt
			return p.OnPaymentRecorded(ctx, &c)
		})
}

// EmitClaimantQualified emits a claimant qualified event.
func (r *Registry) EmitClaimantQualified(ctx context.Context, policyID int64, payer string, total types.Money) {
	emit(ctx, r, "OnClaimantQualified", func(r *Registry) []OnClaimantQualified { return r.onClaimantQualified },
		func(p OnClaimantQualified) error { return p.OnClaimantQualified(ctx, policyID, payer, total) })
}

// EmitPremiumCalculated emits a premium calculated event.
func (r *Registry) EmitPremiumCalculated(ctx context.Context, policyID int64, payer string, b premium.Breakdown) {
	emit(ctx, r, "OnPremiumCalculated", func(r *Registry) []OnPremiumCalculated { return r.onPremiumCalculated },
		func(p OnPremiumCalculated) error { return p.OnPremiumCalculated(ctx, policyID, payer, b) })
}

// EmitAccessDenied emits an access denied event.
func (r *Registry) EmitAccessDenied(ctx context.Context, caller, operation string) {
	emit(ctx, r, "OnAccessDenied", func(r *Registry) []OnAccessDenied { return r.onAccessDenied },
		func(p OnAccessDenied) error { return p.OnAccessDenied(ctx, caller, operation) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the policy pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
