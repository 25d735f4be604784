package emit

import (
	"context"
	"log/slog"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// LogEmitter writes one structured log line per block. This is the
// reference sink: the stream's primary success-path output.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, block *domain.Block, providerName string) error {
	e.log.Info("New block",
		"block_number", block.Number,
		"timestamp", block.Timestamp,
		"tx_count", block.TxCount(),
		"transactions", block.Transactions,
		"provider", providerName,
		"hash", block.Hash,
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
