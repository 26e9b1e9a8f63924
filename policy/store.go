package policy

import (
	"context"
	"time"
)

// Store persists policies. Implementations allocate IDs sequentially from 1
// and never reuse them.
type Store interface {
	// Create assigns p.ID and persists p.
	Create(ctx context.Context, p *Policy) error
	Get(ctx context.Context, policyID int64) (*Policy, error)
	List(ctx context.Context, opts ListOpts) ([]*Policy, error)
	// Deactivate reports whether this call moved the policy from active to inactive.
	Deactivate(ctx context.Context, policyID int64, at time.Time) (bool, error)
	Count(ctx context.Context) (int64, error)
}
