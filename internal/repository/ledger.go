package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-points/internal/model"
)

// LedgerRepository appends point transactions and keeps user_balances in
// step with them.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const transactionColumns = `
	id, user_id, type, points, scenario_type, description, order_id, course_id,
	operation_id, amount_converted::text, created_at
`

// Apply adds entry.Points to the user's balance and appends entry, both in
// one database transaction with the balance row locked. check sees the
// balance before the change, or nil when the user has none yet; a non-nil
// error from check aborts the whole unit of work.
//
// A repeated (user_id, operation_id) pair returns ErrDuplicate and leaves
// nothing behind.
func (r *LedgerRepository) Apply(ctx context.Context, entry *model.PointTransaction, check func(*model.UserBalance) error) (*model.UserBalance, error) {
	var updated *model.UserBalance

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_balances (user_id, total_points, created_at, updated_at)
			VALUES ($1, 0, NOW(), NOW())
			ON CONFLICT (user_id) DO NOTHING
		`, entry.UserID)
		if err != nil {
			return fmt.Errorf("failed to ensure balance: %w", err)
		}
		created := tag.RowsAffected() == 1

		current, err := getBalance(ctx, tx, entry.UserID, true)
		if err != nil {
			return err
		}
		if created {
			current = nil
		}
		if err := check(current); err != nil {
			return err
		}

		updated, err = scanBalance(tx.QueryRow(ctx, `
			UPDATE user_balances
			SET total_points = total_points + $2, updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+balanceColumns, entry.UserID, entry.Points))
		if err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO point_transactions (
				id, user_id, type, points, scenario_type, description, order_id,
				course_id, operation_id, amount_converted, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11)
		`,
			entry.ID, entry.UserID, string(entry.Type), entry.Points, entry.ScenarioType,
			entry.Description, entry.OrderID, entry.CourseID, entry.OperationID,
			decimalArg(entry.AmountConverted), entry.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FindByOperation returns the transaction a caller recorded under operationID.
func (r *LedgerRepository) FindByOperation(ctx context.Context, userID, operationID string) (*model.PointTransaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM point_transactions
		WHERE user_id = $1 AND operation_id = $2
	`
	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, userID, operationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by operation: %w", err)
	}
	return tx, nil
}

// History returns one page of a user's transactions, newest first, and the
// user's total transaction count.
func (r *LedgerRepository) History(ctx context.Context, userID string, offset, limit int) ([]*model.PointTransaction, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM point_transactions WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + `
		FROM point_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer rows.Close()

	items := make([]*model.PointTransaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		items = append(items, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transactions: %w", err)
	}

	return items, total, nil
}

// WindowTotals sums signed deltas per user over [from, to) and returns the
// top rows ordered by total descending, then user ID ascending.
func (r *LedgerRepository) WindowTotals(ctx context.Context, from, to time.Time, limit int) ([]model.UserTotal, error) {
	const query = `
		SELECT user_id, SUM(points) AS total_points
		FROM point_transactions
		WHERE type IN ('EARN', 'REDEEM')
		  AND created_at >= $1
		  AND created_at < $2
		GROUP BY user_id
		ORDER BY total_points DESC, user_id ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get window totals: %w", err)
	}
	defer rows.Close()

	var totals []model.UserTotal
	for rows.Next() {
		var t model.UserTotal
		if err := rows.Scan(&t.UserID, &t.TotalPoints); err != nil {
			return nil, fmt.Errorf("failed to scan window total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating window totals: %w", err)
	}

	return totals, nil
}

// UserWindowTotal returns one user's net points over [from, to).
func (r *LedgerRepository) UserWindowTotal(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(points), 0)
		FROM point_transactions
		WHERE user_id = $1
		  AND type IN ('EARN', 'REDEEM')
		  AND created_at >= $2
		  AND created_at < $3
	`

	var total int64
	if err := r.pool.QueryRow(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get user window total: %w", err)
	}
	return total, nil
}

// CountUsersAbove counts users whose net points over [from, to) exceed points.
func (r *LedgerRepository) CountUsersAbove(ctx context.Context, from, to time.Time, points int64) (int64, error) {
	const query = `
		SELECT COUNT(*) FROM (
			SELECT user_id
			FROM point_transactions
			WHERE type IN ('EARN', 'REDEEM')
			  AND created_at >= $1
			  AND created_at < $2
			GROUP BY user_id
			HAVING SUM(points) > $3
		) above
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, from, to, points).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users above: %w", err)
	}
	return count, nil
}

// Drifted lists balances whose stored total differs from their ledger sum.
func (r *LedgerRepository) Drifted(ctx context.Context) ([]model.BalanceAudit, error) {
	const query = `
		SELECT b.user_id, b.total_points, COALESCE(SUM(t.points), 0) AS ledger
		FROM user_balances b
		LEFT JOIN point_transactions t ON t.user_id = b.user_id
		GROUP BY b.user_id, b.total_points
		HAVING b.total_points <> COALESCE(SUM(t.points), 0)
		ORDER BY b.user_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to audit balances: %w", err)
	}
	defer rows.Close()

	var audits []model.BalanceAudit
	for rows.Next() {
		var a model.BalanceAudit
		if err := rows.Scan(&a.UserID, &a.Stored, &a.Ledger); err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audits: %w", err)
	}

	return audits, nil
}

// Repair resets the user's stored total to their ledger sum. The balance
// row stays locked while the sum is taken, so a concurrent Apply either
// lands before the repair and is counted or waits until it commits. The
// returned audit holds the total found before the reset.
func (r *LedgerRepository) Repair(ctx context.Context, userID string) (*model.BalanceAudit, error) {
	audit := &model.BalanceAudit{UserID: userID}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := getBalance(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		audit.Stored = current.TotalPoints

		err = tx.QueryRow(ctx, `
			UPDATE user_balances
			SET total_points = (
				SELECT COALESCE(SUM(points), 0) FROM point_transactions WHERE user_id = $1
			), updated_at = NOW()
			WHERE user_id = $1
			RETURNING total_points
		`, userID).Scan(&audit.Ledger)
		if err != nil {
			return fmt.Errorf("failed to repair balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// Statistics summarizes the ledger. from and to bound created_at inclusively
// when set; remaining points and user count always cover every balance.
func (r *LedgerRepository) Statistics(ctx context.Context, from, to *time.Time) (*model.PointStatistics, error) {
	stats := &model.PointStatistics{PointsByScenario: []model.ScenarioStat{}}

	const totalsQuery = `
		SELECT
			COALESCE(SUM(points) FILTER (WHERE type = 'EARN'), 0),
			COALESCE(-SUM(points) FILTER (WHERE type = 'REDEEM'), 0)
		FROM point_transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`
	if err := r.pool.QueryRow(ctx, totalsQuery, from, to).Scan(&stats.TotalEarned, &stats.TotalRedeemed); err != nil {
		return nil, fmt.Errorf("failed to get point totals: %w", err)
	}

	const balancesQuery = `
		SELECT COALESCE(SUM(total_points), 0), COUNT(*) FILTER (WHERE total_points > 0)
		FROM user_balances
	`
	if err := r.pool.QueryRow(ctx, balancesQuery).Scan(&stats.TotalRemaining, &stats.UserCount); err != nil {
		return nil, fmt.Errorf("failed to get balance totals: %w", err)
	}

	const scenarioQuery = `
		SELECT scenario_type, SUM(points) AS total, COUNT(*) AS count
		FROM point_transactions
		WHERE type = 'EARN'
		  AND ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY scenario_type
		ORDER BY total DESC, scenario_type ASC
	`
	rows, err := r.pool.Query(ctx, scenarioQuery, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.ScenarioStat
		if err := rows.Scan(&s.ScenarioType, &s.Total, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan scenario total: %w", err)
		}
		stats.PointsByScenario = append(stats.PointsByScenario, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scenario totals: %w", err)
	}

	return stats, nil
}

func scanTransaction(row pgx.Row) (*model.PointTransaction, error) {
	var (
		tx     model.PointTransaction
		txType string
		amount *string
	)
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&txType,
		&tx.Points,
		&tx.ScenarioType,
		&tx.Description,
		&tx.OrderID,
		&tx.CourseID,
		&tx.OperationID,
		&amount,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = model.TxType(txType)
	if tx.AmountConverted, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	return &tx, nil
}
