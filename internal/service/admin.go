package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"loyalty-points/internal/model"
	"loyalty-points/internal/repository"
)

// ConfigInput carries fields for creating or partially updating a point
// config. Nil fields are left unchanged on update.
type ConfigInput struct {
	ScenarioType   *string          `json:"scenarioType"`
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	PointValue     *int64           `json:"pointValue"`
	IsActive       *bool            `json:"isActive"`
	RedemptionRate *decimal.Decimal `json:"redemptionRate"`
}

// BadgeInput carries fields for creating or partially updating a badge.
type BadgeInput struct {
	Name      *string   `json:"name"`
	MinPoints *int64    `json:"minPoints"`
	TopPoints *int      `json:"topPoints"`
	Icon      *string   `json:"icon"`
	IsActive  *bool     `json:"isActive"`
	Benefits  *[]string `json:"benefits"`
}

// AdminService manages point configs and badges and reports statistics.
type AdminService struct {
	configs ConfigStore
	badges  BadgeStore
	ledger  LedgerStore
}

// NewAdminService creates a new AdminService instance.
func NewAdminService(configs ConfigStore, badges BadgeStore, ledger LedgerStore) *AdminService {
	return &AdminService{configs: configs, badges: badges, ledger: ledger}
}

// ListConfigs returns every point config.
func (s *AdminService) ListConfigs(ctx context.Context) ([]*model.PointConfig, error) {
	return s.configs.List(ctx)
}

// GetConfig returns a point config by ID.
func (s *AdminService) GetConfig(ctx context.Context, id int64) (*model.PointConfig, error) {
	cfg, err := s.configs.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConfigNotFound
	}
	return cfg, err
}

// CreateConfig adds a point config. Scenario types are unique.
func (s *AdminService) CreateConfig(ctx context.Context, in ConfigInput) (*model.PointConfig, error) {
	if in.ScenarioType == nil || in.Name == nil || in.PointValue == nil {
		return nil, invalidConfig("scenarioType, name and pointValue are required")
	}

	cfg := &model.PointConfig{IsActive: true}
	applyConfigInput(cfg, in)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	created, err := s.configs.Create(ctx, cfg)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateScenario
		}
		return nil, err
	}

	log.Info().Str("scenario", created.ScenarioType).Int64("points", created.PointValue).Msg("Point config created")
	return created, nil
}

// UpdateConfig applies the non-nil fields of in to the config with id.
func (s *AdminService) UpdateConfig(ctx context.Context, id int64, in ConfigInput) (*model.PointConfig, error) {
	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	applyConfigInput(cfg, in)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	updated, err := s.configs.Update(ctx, cfg)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrConfigNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateScenario
	case err != nil:
		return nil, err
	}
	return updated, nil
}

// DeleteConfig removes a point config.
func (s *AdminService) DeleteConfig(ctx context.Context, id int64) error {
	err := s.configs.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrConfigNotFound
	}
	return err
}

// ListBadges returns every badge ordered by min points ascending.
func (s *AdminService) ListBadges(ctx context.Context) ([]*model.Badge, error) {
	return s.badges.List(ctx)
}

// CreateBadge adds a badge. Names are unique.
func (s *AdminService) CreateBadge(ctx context.Context, in BadgeInput) (*model.Badge, error) {
	if in.Name == nil || in.MinPoints == nil {
		return nil, invalidConfig("name and minPoints are required")
	}

	b := &model.Badge{IsActive: true, Benefits: []string{}}
	applyBadgeInput(b, in)
	if err := validateBadge(b); err != nil {
		return nil, err
	}

	created, err := s.badges.Create(ctx, b)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateBadge
		}
		return nil, err
	}

	log.Info().Str("badge", created.Name).Int64("min_points", created.MinPoints).Msg("Badge created")
	return created, nil
}

// UpdateBadge applies the non-nil fields of in to the badge with id.
func (s *AdminService) UpdateBadge(ctx context.Context, id int64, in BadgeInput) (*model.Badge, error) {
	b, err := s.badges.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBadgeNotFound
		}
		return nil, err
	}

	applyBadgeInput(b, in)
	if err := validateBadge(b); err != nil {
		return nil, err
	}

	updated, err := s.badges.Update(ctx, b)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrBadgeNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateBadge
	case err != nil:
		return nil, err
	}
	return updated, nil
}

// DeleteBadge removes a badge.
func (s *AdminService) DeleteBadge(ctx context.Context, id int64) error {
	err := s.badges.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrBadgeNotFound
	}
	return err
}

// Statistics summarizes point activity between from and to, both optional
// and inclusive.
func (s *AdminService) Statistics(ctx context.Context, from, to *time.Time) (*model.PointStatistics, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidTimeRange)
	}
	stats, err := s.ledger.Statistics(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}
	return stats, nil
}

func applyConfigInput(cfg *model.PointConfig, in ConfigInput) {
	if in.ScenarioType != nil {
		cfg.ScenarioType = strings.TrimSpace(*in.ScenarioType)
	}
	if in.Name != nil {
		cfg.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		cfg.Description = in.Description
	}
	if in.PointValue != nil {
		cfg.PointValue = *in.PointValue
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	if in.RedemptionRate != nil {
		rate := *in.RedemptionRate
		cfg.RedemptionRate = &rate
	}
}

func validateConfig(cfg *model.PointConfig) error {
	if cfg.ScenarioType == "" {
		return invalidConfig("scenarioType must not be empty")
	}
	if cfg.Name == "" {
		return invalidConfig("name must not be empty")
	}
	if cfg.RedemptionRate != nil && !cfg.RedemptionRate.IsPositive() {
		return invalidConfig("redemptionRate must be positive")
	}
	return nil
}

func applyBadgeInput(b *model.Badge, in BadgeInput) {
	if in.Name != nil {
		b.Name = strings.TrimSpace(*in.Name)
	}
	if in.MinPoints != nil {
		b.MinPoints = *in.MinPoints
	}
	if in.TopPoints != nil {
		top := *in.TopPoints
		if top == 0 {
			b.TopPoints = nil
		} else {
			b.TopPoints = &top
		}
	}
	if in.Icon != nil {
		b.Icon = in.Icon
	}
	if in.IsActive != nil {
		b.IsActive = *in.IsActive
	}
	if in.Benefits != nil {
		b.Benefits = append([]string{}, (*in.Benefits)...)
	}
}

func validateBadge(b *model.Badge) error {
	if b.Name == "" {
		return invalidConfig("name must not be empty")
	}
	if b.MinPoints < 0 {
		return invalidConfig("minPoints must not be negative")
	}
	if b.TopPoints != nil && *b.TopPoints < 0 {
		return invalidConfig("topPoints must be positive")
	}
	return nil
}
