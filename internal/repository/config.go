package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-points/internal/model"
)

const configColumns = `
	id, scenario_type, name, description, point_value, is_active,
	redemption_rate::text, created_at, updated_at
`

// ConfigRepository handles point_configs persistence.
type ConfigRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository creates a new ConfigRepository instance.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// GetActiveByScenario returns the active config for a scenario.
func (r *ConfigRepository) GetActiveByScenario(ctx context.Context, scenarioType string) (*model.PointConfig, error) {
	query := `SELECT ` + configColumns + ` FROM point_configs WHERE scenario_type = $1 AND is_active`
	return r.getOne(ctx, query, scenarioType)
}

// GetByID returns a config by ID regardless of its active flag.
func (r *ConfigRepository) GetByID(ctx context.Context, id int64) (*model.PointConfig, error) {
	query := `SELECT ` + configColumns + ` FROM point_configs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// List returns every config ordered by scenario type.
func (r *ConfigRepository) List(ctx context.Context) ([]*model.PointConfig, error) {
	query := `SELECT ` + configColumns + ` FROM point_configs ORDER BY scenario_type`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list point configs: %w", err)
	}
	defer rows.Close()

	configs := []*model.PointConfig{}
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan point config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point configs: %w", err)
	}

	return configs, nil
}

// Create inserts a config. Returns ErrDuplicate when the scenario type exists.
func (r *ConfigRepository) Create(ctx context.Context, cfg *model.PointConfig) (*model.PointConfig, error) {
	query := `
		INSERT INTO point_configs (scenario_type, name, description, point_value, is_active, redemption_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, NOW(), NOW())
		RETURNING ` + configColumns

	created, err := scanConfig(r.pool.QueryRow(ctx, query,
		cfg.ScenarioType, cfg.Name, cfg.Description, cfg.PointValue, cfg.IsActive, decimalArg(cfg.RedemptionRate),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create point config: %w", err)
	}
	return created, nil
}

// Update overwrites every mutable field of the config with cfg.ID.
func (r *ConfigRepository) Update(ctx context.Context, cfg *model.PointConfig) (*model.PointConfig, error) {
	query := `
		UPDATE point_configs
		SET scenario_type = $2, name = $3, description = $4, point_value = $5,
		    is_active = $6, redemption_rate = $7::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + configColumns

	updated, err := scanConfig(r.pool.QueryRow(ctx, query,
		cfg.ID, cfg.ScenarioType, cfg.Name, cfg.Description, cfg.PointValue, cfg.IsActive, decimalArg(cfg.RedemptionRate),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update point config: %w", err)
	}
	return updated, nil
}

// Delete removes a config.
func (r *ConfigRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM point_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete point config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConfigRepository) getOne(ctx context.Context, query string, arg any) (*model.PointConfig, error) {
	cfg, err := scanConfig(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get point config: %w", err)
	}
	return cfg, nil
}

func scanConfig(row pgx.Row) (*model.PointConfig, error) {
	var (
		cfg  model.PointConfig
		rate *string
	)
	err := row.Scan(
		&cfg.ID,
		&cfg.ScenarioType,
		&cfg.Name,
		&cfg.Description,
		&cfg.PointValue,
		&cfg.IsActive,
		&rate,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cfg.RedemptionRate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return &cfg, nil
}
