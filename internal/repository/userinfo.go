package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-points/internal/model"
)

// UserInfoRepository caches profiles fetched from the identity service.
type UserInfoRepository struct {
	pool *pgxpool.Pool
}

// NewUserInfoRepository creates a new UserInfoRepository instance.
func NewUserInfoRepository(pool *pgxpool.Pool) *UserInfoRepository {
	return &UserInfoRepository{pool: pool}
}

// Get returns the cached profile for a user.
func (r *UserInfoRepository) Get(ctx context.Context, userID string) (*model.UserInfo, error) {
	const query = `
		SELECT user_id, display_name, email, avatar_url, updated_at
		FROM user_info
		WHERE user_id = $1
	`

	var info model.UserInfo
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&info.UserID,
		&info.DisplayName,
		&info.Email,
		&info.AvatarURL,
		&info.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return &info, nil
}

// Upsert stores a profile, replacing any cached copy.
func (r *UserInfoRepository) Upsert(ctx context.Context, info *model.UserInfo) error {
	const query = `
		INSERT INTO user_info (user_id, display_name, email, avatar_url, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email,
		              avatar_url = EXCLUDED.avatar_url, updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, info.UserID, info.DisplayName, info.Email, info.AvatarURL, info.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user info: %w", err)
	}
	return nil
}
