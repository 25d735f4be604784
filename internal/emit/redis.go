package emit

import (
	"context"
	"strings"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// StreamAppender is the slice of the redis client the emitter needs.
type StreamAppender interface {
	Append(ctx context.Context, stream string, values map[string]any) error
	Close() error
}

// RedisEmitter publishes each block record to a Redis stream so
// downstream consumers can tail the chain without polling the RPC
// providers themselves.
type RedisEmitter struct {
	client StreamAppender
	stream string
}

// NewRedisEmitter creates an emitter writing to the named stream.
func NewRedisEmitter(client StreamAppender, stream string) *RedisEmitter {
	if stream == "" {
		stream = "blocks"
	}
	return &RedisEmitter{client: client, stream: stream}
}

func (e *RedisEmitter) Emit(ctx context.Context, block *domain.Block, providerName string) error {
	return e.client.Append(ctx, e.stream, map[string]any{
		"block_number": block.Number,
		"timestamp":    block.Timestamp,
		"tx_count":     block.TxCount(),
		"transactions": strings.Join(block.Transactions, ","),
		"provider":     providerName,
		"hash":         block.Hash,
	})
}

func (e *RedisEmitter) Close() error {
	return e.client.Close()
}
