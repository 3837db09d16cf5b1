package repository

import (
	"context"
	"time"

	"research-pipeline/internal/domain/entity"
)

type FeedRepository interface {
	Get(ctx context.Context, id int64) (*entity.Feed, error)
	GetByURL(ctx context.Context, url string) (*entity.Feed, error)
	ListActive(ctx context.Context) ([]*entity.Feed, error)
	ListActiveByCategory(ctx context.Context, category entity.Category) ([]*entity.Feed, error)
	Create(ctx context.Context, feed *entity.Feed) error
	Deactivate(ctx context.Context, url string) error
	TouchFetchedAt(ctx context.Context, id int64, t time.Time) error
}
