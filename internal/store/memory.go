package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/rating"
)

// MemoryRepository is a development-only Repository used when no database is configured.
type MemoryRepository struct {
	mu sync.RWMutex

	defaultRating int
	profiles      map[string]*domain.RatingProfile
	records       map[string]*domain.MatchRecord
	byPlayer      map[string][]*domain.MatchRecord
}

func NewMemoryRepository(defaultRating int) *MemoryRepository {
	if defaultRating <= 0 {
		defaultRating = rating.Default
	}
	return &MemoryRepository{
		defaultRating: defaultRating,
		profiles:      make(map[string]*domain.RatingProfile),
		records:       make(map[string]*domain.MatchRecord),
		byPlayer:      make(map[string][]*domain.MatchRecord),
	}
}

func (m *MemoryRepository) Rating(ctx context.Context, playerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(playerID)]; ok {
		return p.Rating, nil
	}
	return m.defaultRating, nil
}

func (m *MemoryRepository) UpdateRating(ctx context.Context, playerID string, value int) error {
	key := strings.TrimSpace(playerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[key]
	if !ok {
		p = &domain.RatingProfile{PlayerID: key}
		m.profiles[key] = p
	}
	p.Rating = value
	p.GamesPlayed++
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepository) Profile(ctx context.Context, playerID string) (*domain.RatingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[strings.TrimSpace(playerID)]
	if !ok {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (m *MemoryRepository) SaveMatchRecord(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return ErrDuplicateRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.MatchID]; exists {
		return ErrDuplicateRecord
	}
	copy := *rec
	copy.MovesUCI = append([]string(nil), rec.MovesUCI...)
	copy.MovesSAN = append([]string(nil), rec.MovesSAN...)
	if copy.PGN == "" {
		copy.PGN = BuildPGN(&copy)
	}
	m.records[rec.MatchID] = &copy
	m.byPlayer[rec.WhiteID] = append(m.byPlayer[rec.WhiteID], &copy)
	m.byPlayer[rec.BlackID] = append(m.byPlayer[rec.BlackID], &copy)
	return nil
}

func (m *MemoryRepository) RecentMatches(ctx context.Context, playerID string, limit int) ([]*domain.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.byPlayer[strings.TrimSpace(playerID)]
	if len(list) == 0 {
		return []*domain.MatchRecord{}, nil
	}
	items := make([]*domain.MatchRecord, 0, len(list))
	for _, r := range list {
		copy := *r
		items = append(items, &copy)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].EndedAt.After(items[j].EndedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Records returns every stored record, oldest first.
func (m *MemoryRepository) Records() []*domain.MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MatchRecord, 0, len(m.records))
	for _, r := range m.records {
		copy := *r
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(out[j].EndedAt) })
	return out
}

func (m *MemoryRepository) Close() error { return nil }
