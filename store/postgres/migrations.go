package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the PostgreSQL store.
var Migrations = migrate.NewGroup("policymaker")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_policymaker_policies",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS policymaker_policies (
    id                   BIGSERIAL PRIMARY KEY,
    coverage_amount      BIGINT      NOT NULL,
    initial_premium_fee  BIGINT      NOT NULL,
    premium_rate         BIGINT      NOT NULL,
    currency             TEXT        NOT NULL DEFAULT 'usd',
    duration_days        BIGINT      NOT NULL,
    penalty_rate_percent BIGINT      NOT NULL DEFAULT 0,
    grace_period_months  BIGINT      NOT NULL DEFAULT 0,
    is_active            BOOLEAN     NOT NULL DEFAULT TRUE,
    deactivated_at       TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL,
    updated_at           TIMESTAMPTZ NOT NULL
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
    policy_id        BIGINT      NOT NULL REFERENCES policymaker_policies (id),
    payer            TEXT        NOT NULL,
    total_paid       BIGINT      NOT NULL,
    currency         TEXT        NOT NULL,
    first_payment_at TIMESTAMPTZ NOT NULL,
    last_payment_at  TIMESTAMPTZ NOT NULL,
    payment_count    BIGINT      NOT NULL,
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
