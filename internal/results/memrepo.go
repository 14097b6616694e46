package results

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/Cheese-RelayChess/internal/domain"
)

// memrepo is the repository used when no DATABASE_URL is configured.
type memrepo struct {
	mu    sync.RWMutex
	games map[string]*domain.GameRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{games: make(map[string]*domain.GameRecord)}
}

func (m *memrepo) SaveResult(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return ErrNilRecord
	}
	Annotate(g)
	c := cloneRecord(g)

	m.mu.Lock()
	m.games[g.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(g), nil
}

func (m *memrepo) RecentGames(ctx context.Context, mode string, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	items := make([]*domain.GameRecord, 0, len(m.games))
	for _, g := range m.games {
		if mode == "" || g.Mode == mode {
			items = append(items, cloneRecord(g))
		}
	}
	m.mu.RUnlock()

	// EndedAt desc, id as the tiebreak
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit = clampLimit(limit); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) Stats(ctx context.Context, mode string) (*domain.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.PlayerStats{Mode: mode}
	for _, g := range m.games {
		if mode == "" || g.Mode == mode {
			stats.Add(g)
		}
	}
	return stats, nil
}

func (m *memrepo) Close() error { return nil }

func cloneRecord(g *domain.GameRecord) *domain.GameRecord {
	c := *g
	c.MovesUCI = append([]string(nil), g.MovesUCI...)
	c.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &c
}
