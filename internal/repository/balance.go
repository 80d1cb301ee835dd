package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-points/internal/model"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const balanceColumns = `user_id, total_points, rank, badge_level, created_at, updated_at`

// BalanceRepository reads and maintains the user_balances projection.
type BalanceRepository struct {
	pool *pgxpool.Pool
}

// NewBalanceRepository creates a new BalanceRepository instance.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// Get retrieves a user's balance.
// Returns ErrNotFound if the user has never earned points.
func (r *BalanceRepository) Get(ctx context.Context, userID string) (*model.UserBalance, error) {
	return getBalance(ctx, r.pool, userID, false)
}

// CountAbove counts balances strictly greater than points.
func (r *BalanceRepository) CountAbove(ctx context.Context, points int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_balances WHERE total_points > $1`, points).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count balances: %w", err)
	}
	return count, nil
}

// ListOrdered returns every balance ordered by total descending, then user ID.
func (r *BalanceRepository) ListOrdered(ctx context.Context) ([]model.UserTotal, error) {
	const query = `
		SELECT user_id, total_points
		FROM user_balances
		ORDER BY total_points DESC, user_id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var totals []model.UserTotal
	for rows.Next() {
		var t model.UserTotal
		if err := rows.Scan(&t.UserID, &t.TotalPoints); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}

	return totals, nil
}

// SaveRankings writes materialized rank and badge level for every update in
// a single transaction.
func (r *BalanceRepository) SaveRankings(ctx context.Context, updates []model.RankUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(`
				UPDATE user_balances
				SET rank = $2, badge_level = $3, updated_at = NOW()
				WHERE user_id = $1
			`, u.UserID, u.Rank, u.BadgeLevel)
		}

		results := tx.SendBatch(ctx, batch)
		for range updates {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to save ranking: %w", err)
			}
		}
		return results.Close()
	})
}

func getBalance(ctx context.Context, q querier, userID string, forUpdate bool) (*model.UserBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM user_balances WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	balance, err := scanBalance(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func scanBalance(row pgx.Row) (*model.UserBalance, error) {
	var b model.UserBalance
	err := row.Scan(
		&b.UserID,
		&b.TotalPoints,
		&b.Rank,
		&b.BadgeLevel,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
