package results

import (
	"context"
	"errors"

	"github.com/park285/Cheese-RelayChess/internal/domain"
)

var ErrNilRecord = errors.New("nil game record")

// Repository persists finished games. GetGame returns nil, nil for unknown ids.
type Repository interface {
	SaveResult(ctx context.Context, g *domain.GameRecord) error
	GetGame(ctx context.Context, id string) (*domain.GameRecord, error)
	RecentGames(ctx context.Context, mode string, limit int) ([]*domain.GameRecord, error)
	Stats(ctx context.Context, mode string) (*domain.PlayerStats, error)
	Close() error
}

const defaultRecentLimit = 10

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
