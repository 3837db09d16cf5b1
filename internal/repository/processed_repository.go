package repository

import (
	"context"

	"research-pipeline/internal/domain/entity"
)

// ProcessedRepository is the dedupe ledger. MarkProcessed must return
// entity.ErrDuplicateGUID on a guid collision: the uniqueness constraint is
// part of the contract, not an implementation detail.
type ProcessedRepository interface {
	IsProcessed(ctx context.Context, guid string) (bool, error)
	MarkProcessed(ctx context.Context, rec *entity.ProcessedRecord) error
	Count(ctx context.Context) (int, error)
}
