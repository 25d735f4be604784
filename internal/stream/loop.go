// Package stream implements the polling/failover/advancement state
// machine that drives block ingestion.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/blockstream/internal/core/domain"
	"github.com/vietddude/blockstream/internal/emit"
	"github.com/vietddude/blockstream/internal/infra/rpc/pool"
	"github.com/vietddude/blockstream/internal/infra/rpc/provider"
)

const (
	// DefaultPollInterval is the steady-state delay between cycles.
	DefaultPollInterval = 5 * time.Second

	// DefaultBlockDelayThreshold is how long a provider may report no
	// new block before it is judged stalled.
	DefaultBlockDelayThreshold = 60 * time.Second
)

// Config holds the loop's cadence settings.
type Config struct {
	PollInterval        time.Duration
	BlockDelayThreshold time.Duration
}

// Status is a read-only snapshot of the loop's state for diagnostics.
type Status struct {
	ActiveProvider string
	LastBlock      uint64
	LastBlockTime  time.Time
	Initialized    bool
}

// Loop polls the active provider for new blocks, emits them in strictly
// increasing order, and rotates the pool on faults and stalls. One
// cycle runs to completion before the next begins; all RPC calls and
// sleeps are synchronous.
type Loop struct {
	pool    *pool.Pool
	emitter emit.Emitter

	pollInterval   time.Duration
	delayThreshold time.Duration

	mu     sync.RWMutex
	cursor domain.Cursor

	log   *slog.Logger
	now   func() time.Time
	sleep pool.Sleeper
}

// Option customizes loop construction.
type Option func(*Loop)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithSleeper replaces the poll-interval sleep, used by tests.
func WithSleeper(s pool.Sleeper) Option {
	return func(l *Loop) { l.sleep = s }
}

// WithLogger sets the loop's logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// New creates a streaming loop over the given pool and sink.
func New(p *pool.Pool, emitter emit.Emitter, cfg Config, opts ...Option) *Loop {
	l := &Loop{
		pool:           p,
		emitter:        emitter,
		pollInterval:   cfg.PollInterval,
		delayThreshold: cfg.BlockDelayThreshold,
		log:            slog.Default(),
		now:            time.Now,
		sleep:          sleepWithContext,
	}
	if l.pollInterval <= 0 {
		l.pollInterval = DefaultPollInterval
	}
	if l.delayThreshold <= 0 {
		l.delayThreshold = DefaultBlockDelayThreshold
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes polling cycles until ctx is canceled. Transport faults
// and stalls are recovered via rotation and never end the loop; the
// only returned error is the context's.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rotated, err := l.runCycle(ctx)
		if err != nil {
			return err
		}

		// A rotation already delayed us by its own backoff.
		if !rotated {
			if err := l.sleep(ctx, l.pollInterval); err != nil {
				return err
			}
		}
	}
}

// Status returns a snapshot of the loop's state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		ActiveProvider: l.pool.Active().Name,
		LastBlock:      l.cursor.LastBlock,
		LastBlockTime:  l.cursor.LastBlockTime,
		Initialized:    l.cursor.Initialized,
	}
}

// runCycle executes one polling cycle against the currently active
// provider. It reports whether the cycle ended in a rotation, whose
// backoff already delayed the caller. The only returned error is a
// canceled context.
func (l *Loop) runCycle(ctx context.Context) (rotated bool, err error) {
	prov := l.pool.Active()

	latest, err := prov.Client.LatestBlockNumber(ctx)
	if err != nil {
		// Only the loop's own context ends the cycle. A provider error
		// that merely looks deadline-shaped (http.Client timeouts
		// satisfy errors.Is(err, context.DeadlineExceeded)) is a
		// provider fault and must rotate like any other.
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.log.Error("Failed to fetch latest block", "provider", prov.Name, "error", err)
		RPCErrors.WithLabelValues(prov.Name, "latest_block_number").Inc()
		return true, l.rotate(ctx, prov.Name, rotationReasonLatestFetch)
	}
	ChainLatestBlock.Set(float64(latest))

	if !l.initialized() {
		// No historical replay: the cursor starts one below the tip so
		// the tip itself is the first block emitted. A zero tip pins
		// the cursor at block 0, which then only streams once the
		// chain moves past it.
		start := latest
		if start > 0 {
			start--
		}
		l.advance(start)
		l.log.Info("Starting block streaming", "last_block", start, "provider", prov.Name)
	}

	if latest > l.lastBlock() {
		return l.catchUp(ctx, prov, latest)
	}

	// No new block. A provider that answers but never advances is
	// still unhealthy once the delay threshold passes.
	if l.now().Sub(l.lastBlockTime()) > l.delayThreshold {
		l.log.Warn("No new block within threshold, triggering failover",
			"provider", prov.Name,
			"threshold", l.delayThreshold,
			"last_block", l.lastBlock(),
		)
		return true, l.rotate(ctx, prov.Name, rotationReasonStall)
	}

	return false, nil
}

// catchUp fetches and emits blocks last_block+1 .. latest in order.
func (l *Loop) catchUp(ctx context.Context, prov *pool.Provider, latest uint64) (bool, error) {
	for n := l.lastBlock() + 1; n <= latest; n++ {
		block, err := prov.Client.BlockByNumber(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if errors.Is(err, provider.ErrBlockNotFound) {
				// The gap is retried next cycle against whichever
				// provider is then active; the cursor does not move.
				l.log.Warn("Block missing from provider", "block_number", n, "provider", prov.Name)
				BlocksNotFound.WithLabelValues(prov.Name).Inc()
				return false, nil
			}
			l.log.Error("Failed to fetch block", "block_number", n, "provider", prov.Name, "error", err)
			RPCErrors.WithLabelValues(prov.Name, "block_by_number").Inc()
			return true, l.rotate(ctx, prov.Name, rotationReasonBlockFetch)
		}

		if err := l.emitter.Emit(ctx, block, prov.Name); err != nil {
			// The sink is side-effecting only; its failures never
			// stall the stream.
			l.log.Warn("Emit failed", "block_number", n, "error", err)
		}
		l.advance(n)
		BlocksEmitted.WithLabelValues(prov.Name).Inc()
		StreamLastBlock.Set(float64(n))
	}
	return false, nil
}

func (l *Loop) rotate(ctx context.Context, providerName, reason string) error {
	Rotations.WithLabelValues(providerName, reason).Inc()
	if err := l.pool.RecordFailureAndRotate(ctx); err != nil {
		return err
	}
	return nil
}

func (l *Loop) advance(n uint64) {
	l.mu.Lock()
	l.cursor.Advance(n, l.now())
	l.mu.Unlock()
}

func (l *Loop) lastBlock() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor.LastBlock
}

func (l *Loop) lastBlockTime() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor.LastBlockTime
}

func (l *Loop) initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor.Initialized
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
