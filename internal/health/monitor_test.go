package health

import (
	"testing"
	"time"

	"github.com/vietddude/blockstream/internal/stream"
)

type stubStatus struct {
	status stream.Status
}

func (s *stubStatus) Status() stream.Status { return s.status }

type stubFailures struct {
	counts map[string]int
}

func (s *stubFailures) FailureCounts() map[string]int { return s.counts }

func newMonitorAt(loopStatus stream.Status, failures map[string]int, now time.Time) *Monitor {
	m := NewMonitor(&stubStatus{status: loopStatus}, &stubFailures{counts: failures}, time.Minute)
	m.now = func() time.Time { return now }
	return m
}

func TestCheckHealth_Healthy(t *testing.T) {
	now := time.Now()
	m := newMonitorAt(stream.Status{
		ActiveProvider: "chainstack",
		LastBlock:      100,
		LastBlockTime:  now.Add(-10 * time.Second),
		Initialized:    true,
	}, map[string]int{"chainstack": 0}, now)

	report := m.CheckHealth()
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.ActiveProvider != "chainstack" || report.LastBlock != 100 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.SecondsSince < 9 || report.SecondsSince > 11 {
		t.Errorf("expected ~10s since last block, got %f", report.SecondsSince)
	}
}

func TestCheckHealth_DegradedBeforeFirstPoll(t *testing.T) {
	m := newMonitorAt(stream.Status{Initialized: false}, nil, time.Now())

	report := m.CheckHealth()
	if report.Status != StatusDegraded {
		t.Errorf("expected degraded before initialization, got %s", report.Status)
	}
}

func TestCheckHealth_DegradedPastThreshold(t *testing.T) {
	now := time.Now()
	m := newMonitorAt(stream.Status{
		LastBlock:     100,
		LastBlockTime: now.Add(-90 * time.Second),
		Initialized:   true,
	}, nil, now)

	if got := m.CheckHealth().Status; got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
}

func TestCheckHealth_CriticalPastThreeThresholds(t *testing.T) {
	now := time.Now()
	m := newMonitorAt(stream.Status{
		LastBlock:     100,
		LastBlockTime: now.Add(-5 * time.Minute),
		Initialized:   true,
	}, nil, now)

	if got := m.CheckHealth().Status; got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestCheckHealth_ReportsFailureCounts(t *testing.T) {
	now := time.Now()
	m := newMonitorAt(stream.Status{
		LastBlockTime: now,
		Initialized:   true,
	}, map[string]int{"a": 3, "b": 1}, now)

	report := m.CheckHealth()
	if report.FailureCounts["a"] != 3 || report.FailureCounts["b"] != 1 {
		t.Errorf("unexpected failure counts: %v", report.FailureCounts)
	}
}
