// Package seed loads initial point configs and badges from a YAML file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"loyalty-points/internal/service"
)

// File is the on-disk seed document.
type File struct {
	PointConfigs []PointConfig `yaml:"point_configs"`
	Badges       []Badge       `yaml:"badges"`
}

// PointConfig is one seeded scenario.
type PointConfig struct {
	ScenarioType   string  `yaml:"scenario_type"`
	Name           string  `yaml:"name"`
	Description    string  `yaml:"description"`
	PointValue     int64   `yaml:"point_value"`
	Inactive       bool    `yaml:"inactive"`
	RedemptionRate *string `yaml:"redemption_rate"`
}

// Badge is one seeded tier.
type Badge struct {
	Name      string   `yaml:"name"`
	MinPoints int64    `yaml:"min_points"`
	TopPoints *int     `yaml:"top_points"`
	Icon      string   `yaml:"icon"`
	Benefits  []string `yaml:"benefits"`
}

// Result counts what Apply created and skipped.
type Result struct {
	ConfigsCreated int
	ConfigsSkipped int
	BadgesCreated  int
	BadgesSkipped  int
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply creates every entry that does not exist yet. Existing scenario types
// and badge names are left untouched, so seeding is safe to repeat.
func Apply(ctx context.Context, admin *service.AdminService, f *File) (Result, error) {
	var res Result

	for _, pc := range f.PointConfigs {
		in, err := pc.input()
		if err != nil {
			return res, err
		}
		_, err = admin.CreateConfig(ctx, in)
		switch {
		case errors.Is(err, service.ErrDuplicateScenario):
			res.ConfigsSkipped++
		case err != nil:
			return res, fmt.Errorf("failed to seed config %q: %w", pc.ScenarioType, err)
		default:
			res.ConfigsCreated++
		}
	}

	for _, b := range f.Badges {
		_, err := admin.CreateBadge(ctx, b.input())
		switch {
		case errors.Is(err, service.ErrDuplicateBadge):
			res.BadgesSkipped++
		case err != nil:
			return res, fmt.Errorf("failed to seed badge %q: %w", b.Name, err)
		default:
			res.BadgesCreated++
		}
	}

	log.Info().
		Int("configs_created", res.ConfigsCreated).
		Int("configs_skipped", res.ConfigsSkipped).
		Int("badges_created", res.BadgesCreated).
		Int("badges_skipped", res.BadgesSkipped).
		Msg("Seed data applied")
	return res, nil
}

func (pc PointConfig) input() (service.ConfigInput, error) {
	active := !pc.Inactive
	in := service.ConfigInput{
		ScenarioType: &pc.ScenarioType,
		Name:         &pc.Name,
		PointValue:   &pc.PointValue,
		IsActive:     &active,
	}
	if pc.Description != "" {
		in.Description = &pc.Description
	}
	if pc.RedemptionRate != nil {
		rate, err := decimal.NewFromString(*pc.RedemptionRate)
		if err != nil {
			return in, fmt.Errorf("invalid redemption_rate for %q: %w", pc.ScenarioType, err)
		}
		in.RedemptionRate = &rate
	}
	return in, nil
}

func (b Badge) input() service.BadgeInput {
	in := service.BadgeInput{
		Name:      &b.Name,
		MinPoints: &b.MinPoints,
		TopPoints: b.TopPoints,
	}
	if b.Icon != "" {
		in.Icon = &b.Icon
	}
	if b.Benefits != nil {
		benefits := b.Benefits
		in.Benefits = &benefits
	}
	return in
}
