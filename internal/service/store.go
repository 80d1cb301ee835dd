// Package service implements the points engine, ranking engine and
// administration on top of the storage interfaces declared here.
package service

import (
	"context"
	"time"

	"loyalty-points/internal/identity"
	"loyalty-points/internal/model"
)

// ConfigStore persists point configurations.
type ConfigStore interface {
	GetActiveByScenario(ctx context.Context, scenarioType string) (*model.PointConfig, error)
	GetByID(ctx context.Context, id int64) (*model.PointConfig, error)
	List(ctx context.Context) ([]*model.PointConfig, error)
	Create(ctx context.Context, cfg *model.PointConfig) (*model.PointConfig, error)
	Update(ctx context.Context, cfg *model.PointConfig) (*model.PointConfig, error)
	Delete(ctx context.Context, id int64) error
}

// BadgeStore persists the tier table.
type BadgeStore interface {
	ListActive(ctx context.Context) ([]*model.Badge, error)
	List(ctx context.Context) ([]*model.Badge, error)
	GetByID(ctx context.Context, id int64) (*model.Badge, error)
	Create(ctx context.Context, b *model.Badge) (*model.Badge, error)
	Update(ctx context.Context, b *model.Badge) (*model.Badge, error)
	Delete(ctx context.Context, id int64) error
}

// LedgerStore appends transactions and aggregates them.
type LedgerStore interface {
	Apply(ctx context.Context, entry *model.PointTransaction, check func(*model.UserBalance) error) (*model.UserBalance, error)
	FindByOperation(ctx context.Context, userID, operationID string) (*model.PointTransaction, error)
	History(ctx context.Context, userID string, offset, limit int) ([]*model.PointTransaction, int64, error)
	WindowTotals(ctx context.Context, from, to time.Time, limit int) ([]model.UserTotal, error)
	UserWindowTotal(ctx context.Context, userID string, from, to time.Time) (int64, error)
	CountUsersAbove(ctx context.Context, from, to time.Time, points int64) (int64, error)
	Drifted(ctx context.Context) ([]model.BalanceAudit, error)
	Repair(ctx context.Context, userID string) (*model.BalanceAudit, error)
	Statistics(ctx context.Context, from, to *time.Time) (*model.PointStatistics, error)
}

// BalanceStore reads and maintains the balance projection.
type BalanceStore interface {
	Get(ctx context.Context, userID string) (*model.UserBalance, error)
	CountAbove(ctx context.Context, points int64) (int64, error)
	ListOrdered(ctx context.Context) ([]model.UserTotal, error)
	SaveRankings(ctx context.Context, updates []model.RankUpdate) error
}

// IdentityResolver looks up display names for leaderboard rows.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID, token string) (*identity.Identity, error)
}
