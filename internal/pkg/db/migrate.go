package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var migrations = []struct {
	name string
	sql  string
}{
	{"point_configs", `
		CREATE TABLE IF NOT EXISTS point_configs (
			id BIGSERIAL PRIMARY KEY,
			scenario_type VARCHAR(100) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			point_value BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			redemption_rate NUMERIC(20, 4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`},
	{"badges", `
		CREATE TABLE IF NOT EXISTS badges (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			min_points BIGINT NOT NULL,
			top_points INT CHECK (top_points IS NULL OR top_points > 0),
			icon VARCHAR(255),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			benefits TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`},
	{"user_balances", `
		CREATE TABLE IF NOT EXISTS user_balances (
			user_id VARCHAR(100) PRIMARY KEY,
			total_points BIGINT NOT NULL DEFAULT 0 CHECK (total_points >= 0),
			rank INT,
			badge_level VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`},
	{"idx_user_balances_total", `
		CREATE INDEX IF NOT EXISTS idx_user_balances_total ON user_balances(total_points DESC, user_id)
	`},
	{"point_transactions", `
		CREATE TABLE IF NOT EXISTS point_transactions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(100) NOT NULL REFERENCES user_balances(user_id) ON DELETE CASCADE,
			type VARCHAR(10) NOT NULL CHECK (type IN ('EARN', 'REDEEM')),
			points BIGINT NOT NULL,
			scenario_type VARCHAR(100) NOT NULL,
			description TEXT,
			order_id VARCHAR(100),
			course_id VARCHAR(100),
			operation_id VARCHAR(255),
			amount_converted NUMERIC(20, 4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`},
	{"idx_point_transactions_user_time", `
		CREATE INDEX IF NOT EXISTS idx_point_transactions_user_time ON point_transactions(user_id, created_at DESC)
	`},
	{"idx_point_transactions_type_time", `
		CREATE INDEX IF NOT EXISTS idx_point_transactions_type_time ON point_transactions(type, created_at)
	`},
	{"idx_point_transactions_operation", `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_point_transactions_operation
			ON point_transactions(user_id, operation_id) WHERE operation_id IS NOT NULL
	`},
	{"user_info", `
		CREATE TABLE IF NOT EXISTS user_info (
			user_id VARCHAR(100) PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			email VARCHAR(255),
			avatar_url TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`},
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db Execer) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("Database migrations completed")
	return nil
}
