package emit

import (
	"context"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// BlockSaver is the slice of the block repository the emitter needs.
type BlockSaver interface {
	Save(ctx context.Context, block *domain.Block, providerName string) error
}

// PostgresEmitter persists each streamed block through the block
// repository.
type PostgresEmitter struct {
	repo BlockSaver
}

// NewPostgresEmitter creates an emitter backed by the given repository.
func NewPostgresEmitter(repo BlockSaver) *PostgresEmitter {
	return &PostgresEmitter{repo: repo}
}

func (e *PostgresEmitter) Emit(ctx context.Context, block *domain.Block, providerName string) error {
	return e.repo.Save(ctx, block, providerName)
}

func (e *PostgresEmitter) Close() error { return nil }
