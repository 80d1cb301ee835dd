package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-points/internal/model"
)

const badgeColumns = `id, name, min_points, top_points, icon, is_active, benefits, created_at, updated_at`

// BadgeRepository handles the badge (tier) table.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository creates a new BadgeRepository instance.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

// ListActive returns active badges ordered by min points descending, the
// order tier resolution walks them in.
func (r *BadgeRepository) ListActive(ctx context.Context) ([]*model.Badge, error) {
	return r.list(ctx, `SELECT `+badgeColumns+` FROM badges WHERE is_active ORDER BY min_points DESC, id ASC`)
}

// List returns every badge ordered by min points ascending.
func (r *BadgeRepository) List(ctx context.Context) ([]*model.Badge, error) {
	return r.list(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY min_points ASC, id ASC`)
}

// GetByID returns a badge by ID.
func (r *BadgeRepository) GetByID(ctx context.Context, id int64) (*model.Badge, error) {
	b, err := scanBadge(r.pool.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return b, nil
}

// Create inserts a badge. Returns ErrDuplicate when the name is taken.
func (r *BadgeRepository) Create(ctx context.Context, b *model.Badge) (*model.Badge, error) {
	query := `
		INSERT INTO badges (name, min_points, top_points, icon, is_active, benefits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + badgeColumns

	created, err := scanBadge(r.pool.QueryRow(ctx, query,
		b.Name, b.MinPoints, b.TopPoints, b.Icon, b.IsActive, benefitsArg(b.Benefits),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create badge: %w", err)
	}
	return created, nil
}

// Update overwrites every mutable field of the badge with b.ID.
func (r *BadgeRepository) Update(ctx context.Context, b *model.Badge) (*model.Badge, error) {
	query := `
		UPDATE badges
		SET name = $2, min_points = $3, top_points = $4, icon = $5, is_active = $6,
		    benefits = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + badgeColumns

	updated, err := scanBadge(r.pool.QueryRow(ctx, query,
		b.ID, b.Name, b.MinPoints, b.TopPoints, b.Icon, b.IsActive, benefitsArg(b.Benefits),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update badge: %w", err)
	}
	return updated, nil
}

// Delete removes a badge.
func (r *BadgeRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM badges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete badge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BadgeRepository) list(ctx context.Context, query string) ([]*model.Badge, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	badges := []*model.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badges: %w", err)
	}

	return badges, nil
}

func benefitsArg(benefits []string) []string {
	if benefits == nil {
		return []string{}
	}
	return benefits
}

func scanBadge(row pgx.Row) (*model.Badge, error) {
	var b model.Badge
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.MinPoints,
		&b.TopPoints,
		&b.Icon,
		&b.IsActive,
		&b.Benefits,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
