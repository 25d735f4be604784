package emit

import (
	"context"
	"log/slog"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// Multi fans a block record out to several sinks. A failing sink is
// logged and skipped; the stream keeps advancing.
type Multi struct {
	emitters []Emitter
	log      *slog.Logger
}

// NewMulti composes the given emitters.
func NewMulti(log *slog.Logger, emitters ...Emitter) *Multi {
	if log == nil {
		log = slog.Default()
	}
	return &Multi{emitters: emitters, log: log}
}

func (m *Multi) Emit(ctx context.Context, block *domain.Block, providerName string) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, block, providerName); err != nil {
			m.log.Warn("Sink emit failed", "block_number", block.Number, "error", err)
		}
	}
	return nil
}

func (m *Multi) Close() error {
	var lastErr error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
