package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"loyalty-points/internal/model"
	"loyalty-points/internal/repository"
)

// Configs is an in-memory point configuration store.
type Configs struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*model.PointConfig
}

// NewConfigs creates an empty Configs store.
func NewConfigs() *Configs {
	return &Configs{items: make(map[int64]*model.PointConfig)}
}

func (s *Configs) GetActiveByScenario(_ context.Context, scenarioType string) (*model.PointConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		if c.ScenarioType == scenarioType && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Configs) GetByID(_ context.Context, id int64) (*model.PointConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Configs) List(_ context.Context) ([]*model.PointConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.PointConfig, 0, len(s.items))
	for _, c := range s.items {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioType < out[j].ScenarioType })
	return out, nil
}

func (s *Configs) Create(_ context.Context, cfg *model.PointConfig) (*model.PointConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenarioTaken(cfg.ScenarioType, 0) {
		return nil, repository.ErrDuplicate
	}
	s.nextID++
	now := time.Now()
	c := *cfg
	c.ID = s.nextID
	c.CreatedAt, c.UpdatedAt = now, now
	s.items[c.ID] = &c
	out := c
	return &out, nil
}

func (s *Configs) Update(_ context.Context, cfg *model.PointConfig) (*model.PointConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[cfg.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.scenarioTaken(cfg.ScenarioType, cfg.ID) {
		return nil, repository.ErrDuplicate
	}
	c := *cfg
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.items[c.ID] = &c
	out := c
	return &out, nil
}

func (s *Configs) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Configs) scenarioTaken(scenarioType string, exceptID int64) bool {
	for id, c := range s.items {
		if id != exceptID && c.ScenarioType == scenarioType {
			return true
		}
	}
	return false
}

// Badges is an in-memory badge store.
type Badges struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*model.Badge
}

// NewBadges creates an empty Badges store.
func NewBadges() *Badges {
	return &Badges{items: make(map[int64]*model.Badge)}
}

func (s *Badges) ListActive(_ context.Context) ([]*model.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Badge, 0, len(s.items))
	for _, b := range s.items {
		if b.IsActive {
			out = append(out, copyBadge(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MinPoints != out[j].MinPoints {
			return out[i].MinPoints > out[j].MinPoints
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Badges) List(_ context.Context) ([]*model.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Badge, 0, len(s.items))
	for _, b := range s.items {
		out = append(out, copyBadge(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MinPoints != out[j].MinPoints {
			return out[i].MinPoints < out[j].MinPoints
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Badges) GetByID(_ context.Context, id int64) (*model.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyBadge(b), nil
}

func (s *Badges) Create(_ context.Context, b *model.Badge) (*model.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(b.Name, 0) {
		return nil, repository.ErrDuplicate
	}
	s.nextID++
	now := time.Now()
	c := copyBadge(b)
	c.ID = s.nextID
	c.CreatedAt, c.UpdatedAt = now, now
	s.items[c.ID] = c
	return copyBadge(c), nil
}

func (s *Badges) Update(_ context.Context, b *model.Badge) (*model.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[b.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.nameTaken(b.Name, b.ID) {
		return nil, repository.ErrDuplicate
	}
	c := copyBadge(b)
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.items[c.ID] = c
	return copyBadge(c), nil
}

func (s *Badges) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Badges) nameTaken(name string, exceptID int64) bool {
	for id, b := range s.items {
		if id != exceptID && b.Name == name {
			return true
		}
	}
	return false
}

func copyBadge(b *model.Badge) *model.Badge {
	c := *b
	c.Benefits = append([]string{}, b.Benefits...)
	return &c
}

// UserInfo is an in-memory identity cache.
type UserInfo struct {
	mu    sync.RWMutex
	items map[string]model.UserInfo
}

// NewUserInfo creates an empty UserInfo cache.
func NewUserInfo() *UserInfo {
	return &UserInfo{items: make(map[string]model.UserInfo)}
}

func (s *UserInfo) Get(_ context.Context, userID string) (*model.UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.items[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &info, nil
}

func (s *UserInfo) Upsert(_ context.Context, info *model.UserInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[info.UserID] = *info
	return nil
}
