package store

import (
	"context"

	"github.com/starford/dailymail/internal/models"
	"github.com/starford/dailymail/internal/scheduler"
)

// Store defines the persistence operations used by the service.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	LoadWatermarks(ctx context.Context) (map[string]string, error)
	SaveWatermark(ctx context.Context, action, dateKey string) error
	MarkLearned(ctx context.Context, deck string, row int) (bool, error)
	LearnedRows(ctx context.Context, deck string) (map[int]struct{}, error)
	ListLearned(ctx context.Context, deck string) ([]models.LearnedMark, error)
	AddReview(ctx context.Context, rating int, comment string) (*models.Review, error)
	ListReviews(ctx context.Context, limit int) ([]models.Review, error)
	Close() error
}

// Verify *DB satisfies Store and scheduler.WatermarkStore at compile time.
var (
	_ Store                    = (*DB)(nil)
	_ scheduler.WatermarkStore = (*DB)(nil)
)
