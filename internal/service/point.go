package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"loyalty-points/internal/model"
	"loyalty-points/internal/pkg/lock"
	"loyalty-points/internal/repository"
)

// History paging bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

const redeemDescription = "Points redeemed for order discount"

// EarnMetadata is optional context recorded with an earn event.
// A non-empty OperationID makes the call idempotent.
type EarnMetadata struct {
	Description string
	CourseID    string
	OrderID     string
	OperationID string
}

// RedeemMetadata is optional context recorded with a redemption.
type RedeemMetadata struct {
	Description string
	OperationID string
}

// EarnResult reports the outcome of Earn.
type EarnResult struct {
	UserID        string    `json:"userId"`
	TransactionID uuid.UUID `json:"transactionId"`
	PointsAwarded int64     `json:"points"`
	NewTotal      int64     `json:"totalPoints"`
	Duplicate     bool      `json:"duplicate"`
}

// RedeemResult reports the outcome of Redeem.
type RedeemResult struct {
	UserID          string          `json:"userId"`
	TransactionID   uuid.UUID       `json:"transactionId"`
	PointsRedeemed  int64           `json:"pointsRedeemed"`
	RemainingPoints int64           `json:"remainingPoints"`
	AmountConverted decimal.Decimal `json:"amountConverted"`
	Duplicate       bool            `json:"duplicate"`
}

// BalanceView is the read model returned by GetBalance.
type BalanceView struct {
	UserID      string `json:"userId"`
	TotalPoints int64  `json:"totalPoints"`
	Tier        string `json:"badgeLevel"`
	Rank        *int   `json:"rank"`
	Exists      bool   `json:"exists"`
}

// HistoryPage is one page of a user's ledger, newest first.
type HistoryPage struct {
	Items      []*model.PointTransaction `json:"items"`
	Total      int64                     `json:"total"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"limit"`
	TotalPages int                       `json:"totalPages"`
}

// PointService applies earn and redeem events and answers balance queries.
type PointService struct {
	configs     ConfigStore
	badges      BadgeStore
	ledger      LedgerStore
	balances    BalanceStore
	locks       *lock.UserLock
	defaultRate decimal.Decimal
	lockTimeout time.Duration
	now         func() time.Time
	onChange    func()
}

// NewPointService creates a new PointService instance.
func NewPointService(
	configs ConfigStore,
	badges BadgeStore,
	ledger LedgerStore,
	balances BalanceStore,
	locks *lock.UserLock,
	defaultRate decimal.Decimal,
	lockTimeout time.Duration,
) *PointService {
	if locks == nil {
		locks = lock.NewUserLock()
	}
	return &PointService{
		configs:     configs,
		badges:      badges,
		ledger:      ledger,
		balances:    balances,
		locks:       locks,
		defaultRate: defaultRate,
		lockTimeout: lockTimeout,
		now:         time.Now,
		onChange:    func() {},
	}
}

// SetClock replaces the clock stamped on new transactions.
func (s *PointService) SetClock(now func() time.Time) {
	s.now = now
}

// SetRankingTrigger registers a callback invoked after every applied
// mutation. It must not block.
func (s *PointService) SetRankingTrigger(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.onChange = fn
}

// Earn credits the active config's point value for scenarioType to userID.
func (s *PointService) Earn(ctx context.Context, userID, scenarioType string, meta EarnMetadata) (*EarnResult, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if reservedScenario(scenarioType) {
		return nil, ErrConfigNotFound
	}

	cfg, err := s.configs.GetActiveByScenario(ctx, scenarioType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get point config: %w", err)
	}

	var result *EarnResult
	err = s.locks.WithLockContext(ctx, userID, s.lockTimeout, func() error {
		if prev, err := s.findOperation(ctx, userID, meta.OperationID); err != nil {
			return err
		} else if prev != nil {
			result, err = s.earnReplay(ctx, prev)
			return err
		}

		entry := &model.PointTransaction{
			ID:           uuid.New(),
			UserID:       userID,
			Type:         model.TxTypeEarn,
			Points:       cfg.PointValue,
			ScenarioType: cfg.ScenarioType,
			Description:  earnDescription(cfg, meta.Description),
			OrderID:      optional(meta.OrderID),
			CourseID:     optional(meta.CourseID),
			OperationID:  optional(meta.OperationID),
			CreatedAt:    s.now(),
		}

		balance, err := s.ledger.Apply(ctx, entry, func(current *model.UserBalance) error {
			var available int64
			if current != nil {
				available = current.TotalPoints
			}
			if available+entry.Points < 0 {
				return &InsufficientBalanceError{UserID: userID, Available: available, Requested: -entry.Points}
			}
			return nil
		})
		if errors.Is(err, repository.ErrDuplicate) {
			prev, findErr := s.findOperation(ctx, userID, meta.OperationID)
			if findErr != nil || prev == nil {
				return fmt.Errorf("failed to load duplicate operation: %w", err)
			}
			result, err = s.earnReplay(ctx, prev)
			return err
		}
		if err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				return err
			}
			return fmt.Errorf("failed to earn points: %w", err)
		}

		result = &EarnResult{
			UserID:        userID,
			TransactionID: entry.ID,
			PointsAwarded: entry.Points,
			NewTotal:      balance.TotalPoints,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		log.Info().
			Str("user_id", userID).
			Str("scenario", scenarioType).
			Int64("points", result.PointsAwarded).
			Int64("total", result.NewTotal).
			Msg("Points earned")
		s.onChange()
	}
	return result, nil
}

// Redeem debits points from userID for orderID. The balance must already
// cover the full amount.
func (s *PointService) Redeem(ctx context.Context, userID string, points int64, orderID string, meta RedeemMetadata) (*RedeemResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if userID == "" {
		return nil, ErrMissingUserID
	}

	var result *RedeemResult
	err := s.locks.WithLockContext(ctx, userID, s.lockTimeout, func() error {
		if prev, err := s.findOperation(ctx, userID, meta.OperationID); err != nil {
			return err
		} else if prev != nil {
			result, err = s.redeemReplay(ctx, prev)
			return err
		}

		rate, err := s.redemptionRate(ctx)
		if err != nil {
			return err
		}
		amount := decimal.NewFromInt(points).Mul(rate)

		description := meta.Description
		if description == "" {
			description = redeemDescription
		}
		entry := &model.PointTransaction{
			ID:              uuid.New(),
			UserID:          userID,
			Type:            model.TxTypeRedeem,
			Points:          -points,
			ScenarioType:    model.ScenarioOrderDiscount,
			Description:     &description,
			OrderID:         optional(orderID),
			OperationID:     optional(meta.OperationID),
			AmountConverted: &amount,
			CreatedAt:       s.now(),
		}

		balance, err := s.ledger.Apply(ctx, entry, func(current *model.UserBalance) error {
			if current == nil {
				return ErrUserNotFound
			}
			if current.TotalPoints < points {
				return &InsufficientBalanceError{UserID: userID, Available: current.TotalPoints, Requested: points}
			}
			return nil
		})
		if errors.Is(err, repository.ErrDuplicate) {
			prev, findErr := s.findOperation(ctx, userID, meta.OperationID)
			if findErr != nil || prev == nil {
				return fmt.Errorf("failed to load duplicate operation: %w", err)
			}
			result, err = s.redeemReplay(ctx, prev)
			return err
		}
		if err != nil {
			if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInsufficientBalance) {
				return err
			}
			return fmt.Errorf("failed to redeem points: %w", err)
		}

		result = &RedeemResult{
			UserID:          userID,
			TransactionID:   entry.ID,
			PointsRedeemed:  points,
			RemainingPoints: balance.TotalPoints,
			AmountConverted: amount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		log.Info().
			Str("user_id", userID).
			Str("order_id", orderID).
			Int64("points", points).
			Int64("remaining", result.RemainingPoints).
			Str("amount", result.AmountConverted.String()).
			Msg("Points redeemed")
		s.onChange()
	}
	return result, nil
}

// GetBalance reports a user's total, live tier and global rank. Users
// without a balance get a zero balance at the lowest tier and no rank.
func (s *PointService) GetBalance(ctx context.Context, userID string) (*BalanceView, error) {
	badges, err := s.badges.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}

	balance, err := s.balances.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &BalanceView{UserID: userID, Tier: lowestTier(badges)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	above, err := s.balances.CountAbove(ctx, balance.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rank: %w", err)
	}
	rank := int(above) + 1

	return &BalanceView{
		UserID:      userID,
		TotalPoints: balance.TotalPoints,
		Tier:        tierOrDefault(ResolveTier(badges, balance.TotalPoints, rank)),
		Rank:        &rank,
		Exists:      true,
	}, nil
}

// GetHistory returns one page of the user's transactions, newest first.
func (s *PointService) GetHistory(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	items, total, err := s.ledger.History(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if items == nil {
		items = []*model.PointTransaction{}
	}

	return &HistoryPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// Reconcile compares every stored balance with its ledger sum. With repair
// set, each drifted balance is recomputed from the ledger under the user's
// lock, and the returned audits are the ones found at repair time.
func (s *PointService) Reconcile(ctx context.Context, repair bool) ([]model.BalanceAudit, error) {
	drifted, err := s.ledger.Drifted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to audit balances: %w", err)
	}
	if drifted == nil {
		drifted = []model.BalanceAudit{}
	}

	if !repair {
		for _, a := range drifted {
			log.Warn().
				Str("user_id", a.UserID).
				Int64("stored", a.Stored).
				Int64("ledger", a.Ledger).
				Msg("Balance drift detected")
		}
		return drifted, nil
	}

	repaired := make([]model.BalanceAudit, 0, len(drifted))
	for _, a := range drifted {
		var audit *model.BalanceAudit
		err := s.locks.WithLockContext(ctx, a.UserID, s.lockTimeout, func() error {
			var err error
			audit, err = s.ledger.Repair(ctx, a.UserID)
			return err
		})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to repair balance for %s: %w", a.UserID, err)
		}
		if audit.Drift() == 0 {
			continue
		}

		log.Warn().
			Str("user_id", audit.UserID).
			Int64("stored", audit.Stored).
			Int64("ledger", audit.Ledger).
			Msg("Balance drift repaired")
		repaired = append(repaired, *audit)
	}

	if len(repaired) > 0 {
		s.onChange()
	}
	return repaired, nil
}

// reservedScenario reports whether a scenario is bookkeeping for
// redemptions and never earnable.
func reservedScenario(scenarioType string) bool {
	return scenarioType == model.ScenarioRedemptionRate || scenarioType == model.ScenarioOrderDiscount
}

func (s *PointService) findOperation(ctx context.Context, userID, operationID string) (*model.PointTransaction, error) {
	if operationID == "" {
		return nil, nil
	}
	tx, err := s.ledger.FindByOperation(ctx, userID, operationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up operation: %w", err)
	}
	return tx, nil
}

func (s *PointService) currentTotal(ctx context.Context, userID string) (int64, error) {
	balance, err := s.balances.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.TotalPoints, nil
}

func (s *PointService) earnReplay(ctx context.Context, prev *model.PointTransaction) (*EarnResult, error) {
	total, err := s.currentTotal(ctx, prev.UserID)
	if err != nil {
		return nil, err
	}
	return &EarnResult{
		UserID:        prev.UserID,
		TransactionID: prev.ID,
		PointsAwarded: prev.Points,
		NewTotal:      total,
		Duplicate:     true,
	}, nil
}

func (s *PointService) redeemReplay(ctx context.Context, prev *model.PointTransaction) (*RedeemResult, error) {
	total, err := s.currentTotal(ctx, prev.UserID)
	if err != nil {
		return nil, err
	}
	result := &RedeemResult{
		UserID:          prev.UserID,
		TransactionID:   prev.ID,
		PointsRedeemed:  -prev.Points,
		RemainingPoints: total,
		Duplicate:       true,
	}
	if prev.AmountConverted != nil {
		result.AmountConverted = *prev.AmountConverted
	}
	return result, nil
}

func (s *PointService) redemptionRate(ctx context.Context) (decimal.Decimal, error) {
	cfg, err := s.configs.GetActiveByScenario(ctx, model.ScenarioRedemptionRate)
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaultRate, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get redemption rate: %w", err)
	}
	if cfg.RedemptionRate == nil {
		return s.defaultRate, nil
	}
	return *cfg.RedemptionRate, nil
}

func earnDescription(cfg *model.PointConfig, override string) *string {
	if override != "" {
		return &override
	}
	if cfg.Description != nil && *cfg.Description != "" {
		d := *cfg.Description
		return &d
	}
	name := cfg.Name
	return &name
}

func lowestTier(badges []*model.Badge) string {
	if len(badges) == 0 {
		return model.DefaultTier
	}
	lowest := badges[0]
	for _, b := range badges[1:] {
		if b.MinPoints <= lowest.MinPoints {
			lowest = b
		}
	}
	return lowest.Name
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
