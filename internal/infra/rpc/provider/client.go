// Package provider implements the RPC client capability the streaming
// core needs from a remote block data source.
//
// This package contains:
//   - Client interface: latest block number + block by number
//   - HTTPClient: JSON-RPC over HTTP implementation
//   - ErrBlockNotFound: sentinel for positively missing blocks
package provider

import (
	"context"
	"errors"

	"github.com/vietddude/blockstream/internal/core/domain"
)

// ErrBlockNotFound is returned when the provider explicitly reports
// that the requested block number does not exist (as opposed to a
// transport failure, which is an ordinary error).
var ErrBlockNotFound = errors.New("block not found")

// Client is the capability a provider exposes to the streaming core.
// Errors other than ErrBlockNotFound are opaque to the caller beyond
// "something went wrong, rotate".
type Client interface {
	// LatestBlockNumber returns the highest block number the provider
	// currently knows about.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// BlockByNumber returns the block with the given number, or
	// ErrBlockNotFound if the provider reports it does not exist.
	BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error)
}
