// Package model defines the data models for the loyalty points service.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType categorizes a ledger entry.
type TxType string

// Ledger entry types.
const (
	TxTypeEarn   TxType = "EARN"
	TxTypeRedeem TxType = "REDEEM"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t == TxTypeEarn || t == TxTypeRedeem
}

// Reserved scenario types.
const (
	ScenarioOrderDiscount  = "order_discount"  // written on every redemption
	ScenarioRedemptionRate = "redemption_rate" // carries the point-to-currency rate
)

// DefaultTier is reported when no badge is configured.
const DefaultTier = "New"

// PointConfig maps a scenario to the number of points it is worth.
type PointConfig struct {
	ID             int64            `json:"id" db:"id"`
	ScenarioType   string           `json:"scenarioType" db:"scenario_type"`
	Name           string           `json:"name" db:"name"`
	Description    *string          `json:"description,omitempty" db:"description"`
	PointValue     int64            `json:"pointValue" db:"point_value"`
	IsActive       bool             `json:"isActive" db:"is_active"`
	RedemptionRate *decimal.Decimal `json:"redemptionRate,omitempty" db:"redemption_rate"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

// Badge is a tier definition. TopPoints, when set, restricts the badge to
// users ranked within the top N.
type Badge struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	MinPoints int64     `json:"minPoints" db:"min_points"`
	TopPoints *int      `json:"topPoints,omitempty" db:"top_points"`
	Icon      *string   `json:"icon,omitempty" db:"icon"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	Benefits  []string  `json:"benefits" db:"benefits"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PointTransaction is an append-only ledger entry. Points is the signed
// delta applied to the balance.
type PointTransaction struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	UserID          string           `json:"userId" db:"user_id"`
	Type            TxType           `json:"type" db:"type"`
	Points          int64            `json:"points" db:"points"`
	ScenarioType    string           `json:"scenarioType" db:"scenario_type"`
	Description     *string          `json:"description,omitempty" db:"description"`
	OrderID         *string          `json:"orderId,omitempty" db:"order_id"`
	CourseID        *string          `json:"courseId,omitempty" db:"course_id"`
	OperationID     *string          `json:"operationId,omitempty" db:"operation_id"`
	AmountConverted *decimal.Decimal `json:"amountConverted,omitempty" db:"amount_converted"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
}

// UserBalance is the running total for one user. Rank and BadgeLevel are
// materialized by the ranking refresh.
type UserBalance struct {
	UserID      string    `json:"userId" db:"user_id"`
	TotalPoints int64     `json:"totalPoints" db:"total_points"`
	Rank        *int      `json:"rank,omitempty" db:"rank"`
	BadgeLevel  *string   `json:"badgeLevel,omitempty" db:"badge_level"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// UserTotal is one row of a ledger aggregation.
type UserTotal struct {
	UserID      string `json:"userId" db:"user_id"`
	TotalPoints int64  `json:"totalPoints" db:"total_points"`
}

// UserInfo is the cached profile of an external user.
type UserInfo struct {
	UserID      string    `json:"userId" db:"user_id"`
	DisplayName string    `json:"displayName" db:"display_name"`
	Email       *string   `json:"email,omitempty" db:"email"`
	AvatarURL   *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// ScenarioStat aggregates ledger entries of one scenario.
type ScenarioStat struct {
	ScenarioType string `json:"scenarioType" db:"scenario_type"`
	Total        int64  `json:"total" db:"total"`
	Count        int64  `json:"count" db:"count"`
}

// PointStatistics summarizes the ledger over an optional period.
type PointStatistics struct {
	TotalEarned      int64          `json:"totalEarned"`
	TotalRedeemed    int64          `json:"totalRedeemed"`
	TotalRemaining   int64          `json:"totalRemaining"`
	PointsByScenario []ScenarioStat `json:"pointsByScenario"`
	UserCount        int64          `json:"userCount"`
}

// RankUpdate is the materialized rank and tier for one balance row.
type RankUpdate struct {
	UserID     string
	Rank       int
	BadgeLevel *string
}

// BalanceAudit compares a stored balance with the sum of its ledger.
type BalanceAudit struct {
	UserID string `json:"userId"`
	Stored int64  `json:"stored"`
	Ledger int64  `json:"ledger"`
}

// Drift returns Stored minus Ledger.
func (a BalanceAudit) Drift() int64 {
	return a.Stored - a.Ledger
}
