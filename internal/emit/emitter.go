// Package emit defines the output sink for streamed blocks.
package emit

import (
	"context"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// Emitter makes a durable record of a streamed block. The streaming
// loop does not consume the return value beyond logging; a failing sink
// must not stall the stream.
type Emitter interface {
	// Emit records one block together with the provider it came from.
	Emit(ctx context.Context, block *domain.Block, providerName string) error

	// Close closes the emitter connection.
	Close() error
}
