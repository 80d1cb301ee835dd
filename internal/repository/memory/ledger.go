// Package memory provides in-process stores with the same semantics as the
// PostgreSQL repositories. They back the "memory" database driver and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"loyalty-points/internal/model"
	"loyalty-points/internal/repository"
)

// Ledger holds balances and transactions together so Apply is atomic.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]*model.UserBalance
	txs      []*model.PointTransaction
	now      func() time.Time
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]*model.UserBalance),
		now:      time.Now,
	}
}

// Apply adds entry.Points to the balance and appends entry atomically.
func (l *Ledger) Apply(ctx context.Context, entry *model.PointTransaction, check func(*model.UserBalance) error) (*model.UserBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.OperationID != nil {
		if _, ok := l.findByOperation(entry.UserID, *entry.OperationID); ok {
			return nil, repository.ErrDuplicate
		}
	}

	current, ok := l.balances[entry.UserID]
	var snapshot *model.UserBalance
	if ok {
		b := *current
		snapshot = &b
	}
	if err := check(snapshot); err != nil {
		return nil, err
	}

	now := l.now()
	if !ok {
		current = &model.UserBalance{UserID: entry.UserID, CreatedAt: now}
		l.balances[entry.UserID] = current
	}
	current.TotalPoints += entry.Points
	current.UpdatedAt = now

	tx := *entry
	l.txs = append(l.txs, &tx)

	b := *current
	return &b, nil
}

// FindByOperation returns the transaction recorded under operationID.
func (l *Ledger) FindByOperation(_ context.Context, userID, operationID string) (*model.PointTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.findByOperation(userID, operationID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *tx
	return &c, nil
}

func (l *Ledger) findByOperation(userID, operationID string) (*model.PointTransaction, bool) {
	for _, tx := range l.txs {
		if tx.UserID == userID && tx.OperationID != nil && *tx.OperationID == operationID {
			return tx, true
		}
	}
	return nil, false
}

// History returns one page of a user's transactions, newest first.
func (l *Ledger) History(_ context.Context, userID string, offset, limit int) ([]*model.PointTransaction, int64, error) {
	l.mu.RLock()
	var mine []*model.PointTransaction
	for _, tx := range l.txs {
		if tx.UserID == userID {
			c := *tx
			mine = append(mine, &c)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID.String() > mine[j].ID.String()
	})

	total := int64(len(mine))
	if offset >= len(mine) {
		return []*model.PointTransaction{}, total, nil
	}
	end := min(offset+limit, len(mine))
	return mine[offset:end], total, nil
}

func (l *Ledger) windowSums(from, to time.Time) map[string]int64 {
	sums := make(map[string]int64)
	for _, tx := range l.txs {
		if !tx.Type.Valid() || tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		sums[tx.UserID] += tx.Points
	}
	return sums
}

// WindowTotals sums signed deltas per user over [from, to).
func (l *Ledger) WindowTotals(ctx context.Context, from, to time.Time, limit int) ([]model.UserTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	sums := l.windowSums(from, to)
	l.mu.RUnlock()

	totals := make([]model.UserTotal, 0, len(sums))
	for id, sum := range sums {
		totals = append(totals, model.UserTotal{UserID: id, TotalPoints: sum})
	}
	sortTotals(totals)
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

// UserWindowTotal returns one user's net points over [from, to).
func (l *Ledger) UserWindowTotal(_ context.Context, userID string, from, to time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.windowSums(from, to)[userID], nil
}

// CountUsersAbove counts users whose net points over [from, to) exceed points.
func (l *Ledger) CountUsersAbove(_ context.Context, from, to time.Time, points int64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n int64
	for _, sum := range l.windowSums(from, to) {
		if sum > points {
			n++
		}
	}
	return n, nil
}

// Drifted lists balances whose stored total differs from their ledger sum.
func (l *Ledger) Drifted(_ context.Context) ([]model.BalanceAudit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sums := make(map[string]int64)
	for _, tx := range l.txs {
		sums[tx.UserID] += tx.Points
	}

	var audits []model.BalanceAudit
	for id, b := range l.balances {
		if b.TotalPoints != sums[id] {
			audits = append(audits, model.BalanceAudit{UserID: id, Stored: b.TotalPoints, Ledger: sums[id]})
		}
	}
	sort.Slice(audits, func(i, j int) bool { return audits[i].UserID < audits[j].UserID })
	return audits, nil
}

// Statistics summarizes the ledger; from and to are inclusive when set.
func (l *Ledger) Statistics(_ context.Context, from, to *time.Time) (*model.PointStatistics, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &model.PointStatistics{PointsByScenario: []model.ScenarioStat{}}
	byScenario := make(map[string]*model.ScenarioStat)
	for _, tx := range l.txs {
		if from != nil && tx.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && tx.CreatedAt.After(*to) {
			continue
		}
		switch tx.Type {
		case model.TxTypeEarn:
			stats.TotalEarned += tx.Points
			s, ok := byScenario[tx.ScenarioType]
			if !ok {
				s = &model.ScenarioStat{ScenarioType: tx.ScenarioType}
				byScenario[tx.ScenarioType] = s
			}
			s.Total += tx.Points
			s.Count++
		case model.TxTypeRedeem:
			stats.TotalRedeemed -= tx.Points
		}
	}
	for _, s := range byScenario {
		stats.PointsByScenario = append(stats.PointsByScenario, *s)
	}
	sort.Slice(stats.PointsByScenario, func(i, j int) bool {
		a, b := stats.PointsByScenario[i], stats.PointsByScenario[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.ScenarioType < b.ScenarioType
	})

	for _, b := range l.balances {
		stats.TotalRemaining += b.TotalPoints
		if b.TotalPoints > 0 {
			stats.UserCount++
		}
	}
	return stats, nil
}

// Get retrieves a user's balance.
func (l *Ledger) Get(_ context.Context, userID string) (*model.UserBalance, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.balances[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *b
	return &c, nil
}

// CountAbove counts balances strictly greater than points.
func (l *Ledger) CountAbove(_ context.Context, points int64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n int64
	for _, b := range l.balances {
		if b.TotalPoints > points {
			n++
		}
	}
	return n, nil
}

// ListOrdered returns every balance ordered by total descending, then user ID.
func (l *Ledger) ListOrdered(_ context.Context) ([]model.UserTotal, error) {
	l.mu.RLock()
	totals := make([]model.UserTotal, 0, len(l.balances))
	for id, b := range l.balances {
		totals = append(totals, model.UserTotal{UserID: id, TotalPoints: b.TotalPoints})
	}
	l.mu.RUnlock()
	sortTotals(totals)
	return totals, nil
}

// SaveRankings writes materialized rank and badge level.
func (l *Ledger) SaveRankings(_ context.Context, updates []model.RankUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, u := range updates {
		b, ok := l.balances[u.UserID]
		if !ok {
			continue
		}
		rank := u.Rank
		b.Rank = &rank
		b.BadgeLevel = u.BadgeLevel
		b.UpdatedAt = now
	}
	return nil
}

// Repair resets the user's stored total to their ledger sum.
func (l *Ledger) Repair(ctx context.Context, userID string) (*model.BalanceAudit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	audit := &model.BalanceAudit{UserID: userID, Stored: b.TotalPoints}
	for _, tx := range l.txs {
		if tx.UserID == userID {
			audit.Ledger += tx.Points
		}
	}
	b.TotalPoints = audit.Ledger
	b.UpdatedAt = l.now()
	return audit, nil
}

func sortTotals(totals []model.UserTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].TotalPoints != totals[j].TotalPoints {
			return totals[i].TotalPoints > totals[j].TotalPoints
		}
		return totals[i].UserID < totals[j].UserID
	})
}
