package premium

import (
	"context"
	"time"

	"github.com/xraph/policymaker/types"
)

// Store persists payment records.
//
// Record must be atomic per (policy, payer): the policy existence, activity
// and currency checks and the accumulation happen as one step, and concurrent
// payments for the same pair never lose an update.
type Store interface {
	// Record returns the payment record as it stands after this payment.
	Record(ctx context.Context, policyID int64, payer string, amount types.Money, at time.Time) (*Payment, error)
	Get(ctx context.Context, policyID int64, payer string) (*Payment, error)
	List(ctx context.Context, policyID int64) ([]*Payment, error)
}
