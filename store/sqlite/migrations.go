package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the SQLite store.
var Migrations = migrate.NewGroup("policymaker")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_policymaker_policies",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS policymaker_policies (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    coverage_amount      INTEGER NOT NULL,
    initial_premium_fee  INTEGER NOT NULL,
    premium_rate         INTEGER NOT NULL,
    currency             TEXT    NOT NULL DEFAULT 'usd',
    duration_days        INTEGER NOT NULL,
    penalty_rate_percent INTEGER NOT NULL DEFAULT 0,
    grace_period_months  INTEGER NOT NULL DEFAULT 0,
    is_active            INTEGER NOT NULL DEFAULT 1,
    deactivated_at       INTEGER,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policymaker_policies_active ON policymaker_policies (is_active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS policymaker_policies`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_policymaker_payments",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS policymaker_payments (
    policy_id        INTEGER NOT NULL REFERENCES policymaker_policies (id),
    payer            TEXT    NOT NULL,
    total_paid       INTEGER NOT NULL,
    currency         TEXT    NOT NULL,
    first_payment_at INTEGER NOT NULL,
    last_payment_at  INTEGER NOT NULL,
    payment_count    INTEGER NOT NULL,
    PRIMARY KEY (policy_id, payer)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS policymaker_payments`)
				return err
			},
		},
	)
}
