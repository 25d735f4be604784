package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/blockstream/internal/core/domain"
	"github.com/vietddude/blockstream/internal/infra/rpc/pool"
	"github.com/vietddude/blockstream/internal/infra/rpc/provider"
)

// =============================================================================
// Mocks
// =============================================================================

// fakeChain simulates a provider holding a set of blocks.
type fakeChain struct {
	blocks      map[uint64]*domain.Block
	latest      uint64
	failOnBlock uint64 // transport error for this block number, 0 = none
	blockErr    error  // error for failOnBlock; nil means a generic one
	latestErr   error  // returned by LatestBlockNumber when set
}

func newFakeChain(from, to uint64) *fakeChain {
	blocks := make(map[uint64]*domain.Block)
	for n := from; n <= to; n++ {
		blocks[n] = &domain.Block{
			Number:       n,
			Hash:         fmt.Sprintf("0xhash%d", n),
			Timestamp:    1000 + 15*n,
			Transactions: []string{fmt.Sprintf("0xtx%d", n)},
		}
	}
	return &fakeChain{blocks: blocks, latest: to}
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.latestErr != nil {
		return 0, c.latestErr
	}
	return c.latest, nil
}

func (c *fakeChain) BlockByNumber(ctx context.Context, n uint64) (*domain.Block, error) {
	if c.failOnBlock != 0 && n == c.failOnBlock {
		if c.blockErr != nil {
			return nil, c.blockErr
		}
		return nil, fmt.Errorf("error retrieving block %d", n)
	}
	b, ok := c.blocks[n]
	if !ok {
		return nil, fmt.Errorf("block %d: %w", n, provider.ErrBlockNotFound)
	}
	return b, nil
}

// captureEmitter records (block number, provider) pairs.
type captureEmitter struct {
	emitted []emittedBlock
	err     error
}

type emittedBlock struct {
	number   uint64
	provider string
}

func (e *captureEmitter) Emit(ctx context.Context, block *domain.Block, providerName string) error {
	if e.err != nil {
		return e.err
	}
	e.emitted = append(e.emitted, emittedBlock{number: block.Number, provider: providerName})
	return nil
}

func (e *captureEmitter) Close() error { return nil }

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestPool(t *testing.T, clients map[string]provider.Client, order []string) *pool.Pool {
	t.Helper()
	specs := make([]pool.Spec, 0, len(order))
	for _, name := range order {
		specs = append(specs, pool.Spec{Name: name, Client: clients[name]})
	}
	p, err := pool.New(context.Background(), specs, pool.WithSleeper(noSleep))
	if err != nil {
		t.Fatalf("failed to build pool: %v", err)
	}
	return p
}

// =============================================================================
// Tests
// =============================================================================

func TestLoop_SequentialProcessingNoGaps(t *testing.T) {
	chain := newFakeChain(1, 5)
	p := newTestPool(t, map[string]provider.Client{"primary": chain}, []string{"primary"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 0, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated {
		t.Error("expected no rotation")
	}

	if len(sink.emitted) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(sink.emitted))
	}
	for i, e := range sink.emitted {
		if e.number != uint64(i+1) {
			t.Errorf("position %d: expected block %d, got %d", i, i+1, e.number)
		}
	}
	if got := loop.Status().LastBlock; got != 5 {
		t.Errorf("expected cursor at 5, got %d", got)
	}
}

func TestLoop_InitializesCursorToLatestMinusOne(t *testing.T) {
	chain := newFakeChain(99, 100)
	p := newTestPool(t, map[string]provider.Client{"primary": chain}, []string{"primary"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))

	if _, err := loop.runCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No historical replay: only the current tip is emitted.
	if len(sink.emitted) != 1 {
		t.Fatalf("expected 1 block, got %d", len(sink.emitted))
	}
	if sink.emitted[0].number != 100 {
		t.Errorf("expected block 100, got %d", sink.emitted[0].number)
	}
}

func TestLoop_GenesisTipPinsCursorWithoutEmitting(t *testing.T) {
	chain := newFakeChain(0, 0)
	p := newTestPool(t, map[string]provider.Client{"primary": chain}, []string{"primary"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))

	// A zero tip cannot sit one block behind itself: the cursor pins at
	// 0 and nothing streams until the chain moves.
	if _, err := loop.runCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.emitted) != 0 {
		t.Fatalf("expected no emissions at a zero tip, got %d", len(sink.emitted))
	}
	status := loop.Status()
	if !status.Initialized || status.LastBlock != 0 {
		t.Errorf("expected initialized cursor at 0, got %+v", status)
	}

	chain.blocks[1] = &domain.Block{Number: 1, Hash: "0xhash1", Timestamp: 1015}
	chain.latest = 1
	if _, err := loop.runCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.emitted) != 1 || sink.emitted[0].number != 1 {
		t.Errorf("expected block 1 once the chain moves, got %v", sink.emitted)
	}
}

func TestLoop_StallTriggersRotation(t *testing.T) {
	chainA := newFakeChain(1, 5)
	chainB := newFakeChain(1, 5)
	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)
	sink := &captureEmitter{}

	loop := New(p, sink, Config{BlockDelayThreshold: time.Second}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{
		LastBlock:     5,
		LastBlockTime: time.Now().Add(-5 * time.Second),
		Initialized:   true,
	}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rotated {
		t.Error("expected a rotation")
	}
	if got := p.Active().Name; got != "b" {
		t.Errorf("expected active provider b, got %s", got)
	}
	if len(sink.emitted) != 0 {
		t.Errorf("expected no emissions, got %d", len(sink.emitted))
	}
}

func TestLoop_NoStallWithinThreshold(t *testing.T) {
	chain := newFakeChain(1, 5)
	p := newTestPool(t, map[string]provider.Client{"a": chain}, []string{"a"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{BlockDelayThreshold: time.Minute}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 5, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated {
		t.Error("expected no rotation for a fresh cursor")
	}
}

func TestLoop_FailoverAndCatchUp(t *testing.T) {
	// Provider a serves blocks 1,2 then fails on 3; b has 1..4.
	chainA := newFakeChain(1, 2)
	chainA.latest = 3
	chainA.failOnBlock = 3
	chainB := newFakeChain(1, 4)

	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)
	sink := &captureEmitter{}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 0, LastBlockTime: time.Now(), Initialized: true}

	ctx := context.Background()
	for i := 0; i < 3 && len(sink.emitted) < 4; i++ {
		if _, err := loop.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
	}

	expected := []emittedBlock{
		{1, "a"}, {2, "a"}, {3, "b"}, {4, "b"},
	}
	if len(sink.emitted) != len(expected) {
		t.Fatalf("expected %d blocks, got %d: %v", len(expected), len(sink.emitted), sink.emitted)
	}
	for i, want := range expected {
		if sink.emitted[i] != want {
			t.Errorf("position %d: expected %v, got %v", i, want, sink.emitted[i])
		}
	}
	if got := p.FailureCount("a"); got != 1 {
		t.Errorf("expected failure count 1 for a, got %d", got)
	}
}

func TestLoop_LatestFetchFailureRotates(t *testing.T) {
	chainA := newFakeChain(1, 5)
	chainB := newFakeChain(1, 5)

	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)
	// Wired after construction so the liveness probe passes.
	chainA.latestErr = fmt.Errorf("latest block fetch failed")

	sink := &captureEmitter{}
	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 5, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rotated {
		t.Error("expected rotation on latest-block failure")
	}
	if got := p.Active().Name; got != "b" {
		t.Errorf("expected active provider b, got %s", got)
	}
}

func TestLoop_TimeoutShapedProviderErrorRotates(t *testing.T) {
	// http.Client timeouts satisfy errors.Is(err, context.DeadlineExceeded)
	// even though the loop's own context is fine. They are provider
	// faults: the pool must rotate and charge a failure.
	chainA := newFakeChain(1, 5)
	chainB := newFakeChain(1, 5)

	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)
	chainA.latestErr = fmt.Errorf("eth_blockNumber failed: rpc call: %w", context.DeadlineExceeded)

	sink := &captureEmitter{}
	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 5, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rotated {
		t.Error("expected rotation on a timing-out provider")
	}
	if got := p.Active().Name; got != "b" {
		t.Errorf("expected active provider b, got %s", got)
	}
	if got := p.FailureCount("a"); got != 1 {
		t.Errorf("expected failure count 1 for a, got %d", got)
	}
}

func TestLoop_TimeoutShapedBlockFetchRotates(t *testing.T) {
	// Block 3 times out on a rather than returning a plain transport
	// error; the catch-up path must rotate all the same.
	chainA := newFakeChain(1, 2)
	chainA.latest = 3
	chainA.failOnBlock = 3
	chainA.blockErr = fmt.Errorf("eth_getBlockByNumber failed: rpc call: %w", context.DeadlineExceeded)
	chainB := newFakeChain(1, 4)

	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)

	sink := &captureEmitter{}
	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 2, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rotated {
		t.Error("expected rotation on a timing-out block fetch")
	}
	if got := p.Active().Name; got != "b" {
		t.Errorf("expected active provider b, got %s", got)
	}
	if got := p.FailureCount("a"); got != 1 {
		t.Errorf("expected failure count 1 for a, got %d", got)
	}
}

func TestLoop_CanceledContextEndsCycleWithoutRotating(t *testing.T) {
	chainA := newFakeChain(1, 5)
	chainB := newFakeChain(1, 5)

	p := newTestPool(t,
		map[string]provider.Client{"a": chainA, "b": chainB},
		[]string{"a", "b"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chainA.latestErr = ctx.Err()

	sink := &captureEmitter{}
	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 5, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rotated {
		t.Error("a canceled loop context must not rotate the pool")
	}
	if got := p.Active().Name; got != "a" {
		t.Errorf("expected active provider unchanged, got %s", got)
	}
	if got := p.FailureCount("a"); got != 0 {
		t.Errorf("a canceled loop context must not charge a failure, got %d", got)
	}
}

func TestLoop_NotFoundStopsWithoutRotating(t *testing.T) {
	chain := newFakeChain(1, 2)
	chain.latest = 3 // claims 3 exists but cannot serve it

	p := newTestPool(t, map[string]provider.Client{"a": chain}, []string{"a"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 0, LastBlockTime: time.Now(), Initialized: true}

	ctx := context.Background()
	rotated, err := loop.runCycle(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated {
		t.Error("not-found must not rotate the pool")
	}
	if got := loop.Status().LastBlock; got != 2 {
		t.Errorf("cursor must stop before the missing block, got %d", got)
	}
	if got := p.FailureCount("a"); got != 0 {
		t.Errorf("not-found must not count as a provider failure, got %d", got)
	}

	// The gap is retried in place: once the provider has the block,
	// the next cycle picks it up.
	chain.blocks[3] = &domain.Block{Number: 3, Hash: "0xhash3", Timestamp: 1045}
	if _, err := loop.runCycle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loop.Status().LastBlock; got != 3 {
		t.Errorf("expected cursor at 3 after retry, got %d", got)
	}
}

func TestLoop_MonotonicCursorNoReemission(t *testing.T) {
	chain := newFakeChain(1, 5)
	p := newTestPool(t, map[string]provider.Client{"a": chain}, []string{"a"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{BlockDelayThreshold: time.Hour}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 0, LastBlockTime: time.Now(), Initialized: true}

	ctx := context.Background()
	var lastSeen uint64
	for i := 0; i < 5; i++ {
		if _, err := loop.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d failed: %v", i, err)
		}
		cur := loop.Status().LastBlock
		if cur < lastSeen {
			t.Fatalf("cursor went backwards: %d -> %d", lastSeen, cur)
		}
		lastSeen = cur
	}

	// Caught up after the first cycle; the remaining cycles must not
	// re-emit anything.
	seen := make(map[uint64]int)
	for _, e := range sink.emitted {
		seen[e.number]++
	}
	for n, count := range seen {
		if count != 1 {
			t.Errorf("block %d emitted %d times", n, count)
		}
	}
	if len(sink.emitted) != 5 {
		t.Errorf("expected 5 unique emissions, got %d", len(sink.emitted))
	}
}

func TestLoop_LaggingProviderDoesNotRewindCursor(t *testing.T) {
	chain := newFakeChain(1, 3)
	p := newTestPool(t, map[string]provider.Client{"laggy": chain}, []string{"laggy"})
	sink := &captureEmitter{}

	loop := New(p, sink, Config{BlockDelayThreshold: time.Hour}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 10, LastBlockTime: time.Now(), Initialized: true}

	rotated, err := loop.runCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated {
		t.Error("expected no rotation within threshold")
	}
	if len(sink.emitted) != 0 {
		t.Errorf("expected no emissions from a lagging provider, got %d", len(sink.emitted))
	}
	if got := loop.Status().LastBlock; got != 10 {
		t.Errorf("cursor must not move backwards, got %d", got)
	}
}

func TestLoop_EmitErrorDoesNotStallStream(t *testing.T) {
	chain := newFakeChain(1, 3)
	p := newTestPool(t, map[string]provider.Client{"a": chain}, []string{"a"})
	sink := &captureEmitter{err: fmt.Errorf("sink unavailable")}

	loop := New(p, sink, Config{}, WithSleeper(noSleep))
	loop.cursor = domain.Cursor{LastBlock: 0, LastBlockTime: time.Now(), Initialized: true}

	if _, err := loop.runCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := loop.Status().LastBlock; got != 3 {
		t.Errorf("expected cursor at 3 despite sink errors, got %d", got)
	}
}

func TestLoop_RunStopsOnContextCancel(t *testing.T) {
	chain := newFakeChain(1, 1)
	p := newTestPool(t, map[string]provider.Client{"a": chain}, []string{"a"})
	sink := &captureEmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	cycles := 0
	loop := New(p, sink, Config{}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cycles++
		if cycles >= 3 {
			cancel()
		}
		return ctx.Err()
	}))

	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
