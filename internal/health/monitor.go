package health

import (
	"time"

	"github.com/vietddude/blockstream/internal/stream"
)

// StatusSource exposes the streaming loop's state.
type StatusSource interface {
	Status() stream.Status
}

// FailureSource exposes the provider pool's failure counters.
type FailureSource interface {
	FailureCounts() map[string]int
}

// Monitor aggregates loop and pool state into a health report.
type Monitor struct {
	loop           StatusSource
	pool           FailureSource
	delayThreshold time.Duration
	now            func() time.Time
}

// NewMonitor creates a health monitor. delayThreshold should match the
// loop's block delay threshold so "degraded" lines up with the loop's
// own stall judgement.
func NewMonitor(loop StatusSource, pool FailureSource, delayThreshold time.Duration) *Monitor {
	return &Monitor{
		loop:           loop,
		pool:           pool,
		delayThreshold: delayThreshold,
		now:            time.Now,
	}
}

// CheckHealth builds the current health report. The stream is degraded
// once no block has been emitted within the delay threshold, and
// critical after three thresholds with no progress.
func (m *Monitor) CheckHealth() Report {
	status := m.loop.Status()

	report := Report{
		Status:         StatusHealthy,
		ActiveProvider: status.ActiveProvider,
		LastBlock:      status.LastBlock,
		Initialized:    status.Initialized,
		FailureCounts:  m.pool.FailureCounts(),
	}

	if !status.Initialized {
		// Still waiting for the first successful poll.
		report.Status = StatusDegraded
		return report
	}

	since := m.now().Sub(status.LastBlockTime)
	report.SecondsSince = since.Seconds()

	switch {
	case since > 3*m.delayThreshold:
		report.Status = StatusCritical
	case since > m.delayThreshold:
		report.Status = StatusDegraded
	}

	return report
}
