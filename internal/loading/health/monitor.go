package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
)

// CheckFunc probes one dependency such as the run history store.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Monitor aggregates health status from finished runs and dependency checks.
type Monitor struct {
	mu        sync.RWMutex
	checks    []namedCheck
	lastRun   *domain.Record
	listeners []func(SystemStatus)

	inflight atomic.Int64
	total    atomic.Int64

	checkTimeout time.Duration
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{checkTimeout: 2 * time.Second}
}

// AddCheck registers a dependency probe. A failing probe makes the system critical.
func (m *Monitor) AddCheck(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, namedCheck{name: name, fn: fn})
}

// OnStatusChange registers fn to receive the run-derived status after every run.
func (m *Monitor) OnStatusChange(fn func(SystemStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// RunStarted counts a run as in flight.
func (m *Monitor) RunStarted(*domain.RunSummary) {
	m.inflight.Add(1)
}

// Observe records a finished run. It matches the orchestrator's observer signature.
func (m *Monitor) Observe(summary *domain.RunSummary) {
	rec := summary.Record()

	m.mu.Lock()
	m.lastRun = &rec
	listeners := append([]func(SystemStatus){}, m.listeners...)
	m.mu.Unlock()

	if m.inflight.Add(-1) < 0 {
		m.inflight.Store(0)
	}
	m.total.Add(1)

	status := StatusOf(&rec)
	for _, fn := range listeners {
		fn(status)
	}
}

// LastRun returns the most recent finished run seen by this process.
func (m *Monitor) LastRun() *domain.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastRun == nil {
		return nil
	}
	rec := *m.lastRun
	return &rec
}

// CheckHealth runs every dependency check and folds in the last run.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]namedCheck{}, m.checks...)
	m.mu.RUnlock()

	last := m.LastRun()
	report := HealthReport{
		SystemStatus: StatusOf(last),
		RunsInFlight: m.inflight.Load(),
		RunsTotal:    m.total.Load(),
		LastRun:      last,
		CheckedAt:    time.Now(),
	}

	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		err := c.fn(checkCtx)
		cancel()

		ch := ComponentHealth{Name: c.name, Status: StatusHealthy}
		if err != nil {
			ch.Status = StatusCritical
			ch.Error = err.Error()
		}
		report.Components = append(report.Components, ch)
		report.SystemStatus = worse(report.SystemStatus, ch.Status)
	}
	return report
}
