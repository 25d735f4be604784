// Package pool owns the ordered provider list, the active selection,
// and the failover/backoff policy.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/blockstream/internal/infra/rpc/provider"
)

// ErrNoWorkingProviders is returned by New when every configured
// provider fails its liveness probe.
var ErrNoWorkingProviders = errors.New("no working providers")

// DefaultBackoffCap bounds the rotation backoff delay.
const DefaultBackoffCap = 300 * time.Second

const defaultHTTPTimeout = 10 * time.Second

// Spec describes one configured provider. Client takes precedence when
// set; otherwise URL is resolved to a JSON-RPC HTTP client. This
// collapses the polymorphic provider representations to one capability
// interface at construction time.
type Spec struct {
	Name    string
	URL     string
	Timeout time.Duration
	Client  provider.Client
}

// Provider is a resolved provider: a display name and its client.
// Immutable after construction; the failure counter lives in the pool.
type Provider struct {
	Name   string
	Client provider.Client
}

// Sleeper suspends the caller for the given duration, honoring ctx.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pool holds the ordered providers, the current index, and per-provider
// consecutive-failure counts. Counters are keyed by provider name and
// never reset, so a provider that has failed before incurs a longer
// backoff the next time it is selected and fails again. The streaming
// loop is the only mutator; the mutex exists so health diagnostics can
// read the pool from another goroutine.
type Pool struct {
	mu        sync.RWMutex
	providers []*Provider
	current   int
	failures  map[string]int

	sleep      Sleeper
	backoffCap time.Duration
	log        *slog.Logger
}

// Option customizes pool construction.
type Option func(*Pool)

// WithSleeper replaces the backoff sleep, used by tests to observe
// delays without waiting.
func WithSleeper(s Sleeper) Option {
	return func(p *Pool) { p.sleep = s }
}

// WithBackoffCap overrides the maximum backoff delay.
func WithBackoffCap(cap time.Duration) Option {
	return func(p *Pool) { p.backoffCap = cap }
}

// WithLogger sets the pool's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) { p.log = log }
}

// New resolves each spec to a usable client and probes it once by
// fetching the latest block number. Providers that fail the probe are
// dropped with a warning; construction fails only when none survive.
func New(ctx context.Context, specs []Spec, opts ...Option) (*Pool, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	p := &Pool{
		failures:   make(map[string]int),
		sleep:      sleepWithContext,
		backoffCap: DefaultBackoffCap,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("provider%d", i+1)
		}

		client := spec.Client
		if client == nil {
			timeout := spec.Timeout
			if timeout == 0 {
				timeout = defaultHTTPTimeout
			}
			client = provider.NewHTTPClient(name, spec.URL, timeout)
		}

		if _, err := client.LatestBlockNumber(ctx); err != nil {
			p.log.Warn("Dropping provider, liveness probe failed", "provider", name, "error", err)
			continue
		}

		p.providers = append(p.providers, &Provider{Name: name, Client: client})
	}

	if len(p.providers) == 0 {
		return nil, fmt.Errorf("%w: %d providers probed", ErrNoWorkingProviders, len(specs))
	}

	return p, nil
}

// Active returns the provider at the current index. No side effects.
func (p *Pool) Active() *Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.providers[p.current]
}

// RecordFailureAndRotate increments the active provider's failure
// counter, sleeps min(2^failures, cap), then advances the current
// index. This is the only way the active provider changes. Returns the
// context's error if the backoff sleep is interrupted.
func (p *Pool) RecordFailureAndRotate(ctx context.Context) error {
	p.mu.Lock()
	old := p.providers[p.current]
	p.failures[old.Name]++
	failures := p.failures[old.Name]
	p.mu.Unlock()

	delay := backoffDelay(failures, p.backoffCap)
	BackoffSeconds.Set(delay.Seconds())
	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.mu.Lock()
	p.current = (p.current + 1) % len(p.providers)
	next := p.providers[p.current]
	p.mu.Unlock()

	p.log.Warn("Switching provider",
		"from", old.Name,
		"to", next.Name,
		"failures", failures,
		"backoff", delay,
	)
	return nil
}

// FailureCount returns the consecutive-failure count recorded for the
// named provider.
func (p *Pool) FailureCount(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures[name]
}

// FailureCounts returns a copy of all recorded failure counts.
func (p *Pool) FailureCounts() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[string]int, len(p.failures))
	for name, n := range p.failures {
		counts[name] = n
	}
	return counts
}

// Len returns the number of usable providers.
func (p *Pool) Len() int {
	return len(p.providers)
}

// Names returns the provider names in pool order.
func (p *Pool) Names() []string {
	names := make([]string, len(p.providers))
	for i, prov := range p.providers {
		names[i] = prov.Name
	}
	return names
}

func backoffDelay(failures int, cap time.Duration) time.Duration {
	// 2^failures seconds, capped. Guard the shift so large counts
	// cannot overflow.
	if failures > 30 {
		return cap
	}
	d := time.Duration(1<<uint(failures)) * time.Second
	if d > cap {
		return cap
	}
	return d
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
