package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// BlockRepo stores streamed blocks in PostgreSQL.
type BlockRepo struct {
	db *DB
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Save upserts a block record. Re-saving the same block number is
// harmless, which keeps the sink idempotent under at-most-once
// emission.
func (r *BlockRepo) Save(ctx context.Context, block *domain.Block, providerName string) error {
	query := `
		INSERT INTO blocks (block_number, block_hash, parent_hash, block_timestamp, tx_count, transactions, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (block_number) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			parent_hash = EXCLUDED.parent_hash,
			block_timestamp = EXCLUDED.block_timestamp,
			tx_count = EXCLUDED.tx_count,
			transactions = EXCLUDED.transactions,
			provider = EXCLUDED.provider
	`

	_, err := r.db.ExecContext(ctx, query,
		block.Number,
		block.Hash,
		block.ParentHash,
		block.Timestamp,
		block.TxCount(),
		strings.Join(block.Transactions, ","),
		providerName,
	)
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

type blockRow struct {
	Number       uint64 `db:"block_number"`
	Hash         string `db:"block_hash"`
	ParentHash   string `db:"parent_hash"`
	Timestamp    uint64 `db:"block_timestamp"`
	TxCount      int    `db:"tx_count"`
	Transactions string `db:"transactions"`
	Provider     string `db:"provider"`
}

func (b *blockRow) toDomain() *domain.Block {
	var txs []string
	if b.Transactions != "" {
		txs = strings.Split(b.Transactions, ",")
	}
	return &domain.Block{
		Number:       b.Number,
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    b.Timestamp,
		Transactions: txs,
	}
}

// GetByNumber retrieves a stored block by number, or nil when absent.
func (r *BlockRepo) GetByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	query := `
		SELECT block_number, block_hash, parent_hash, block_timestamp, tx_count, transactions, provider
		FROM blocks WHERE block_number = $1
	`

	var row blockRow
	if err := r.db.GetContext(ctx, &row, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return row.toDomain(), nil
}

// GetLatest retrieves the highest stored block, or nil when the table
// is empty.
func (r *BlockRepo) GetLatest(ctx context.Context) (*domain.Block, error) {
	query := `
		SELECT block_number, block_hash, parent_hash, block_timestamp, tx_count, transactions, provider
		FROM blocks ORDER BY block_number DESC LIMIT 1
	`

	var row blockRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	return row.toDomain(), nil
}
