package store

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/domain"
)

var ErrDuplicateRecord = errors.New("match record already exists")

// Repository is the durable side of the arena: player ratings and completed match history.
type Repository interface {
	// Rating returns the stored rating, or the default rating for unknown players.
	Rating(ctx context.Context, playerID string) (int, error)
	UpdateRating(ctx context.Context, playerID string, rating int) error
	Profile(ctx context.Context, playerID string) (*domain.RatingProfile, error)
	SaveMatchRecord(ctx context.Context, rec *domain.MatchRecord) error
	RecentMatches(ctx context.Context, playerID string, limit int) ([]*domain.MatchRecord, error)
	Close() error
}
