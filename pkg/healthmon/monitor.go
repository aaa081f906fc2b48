// Package healthmon runs the periodic liveness check of external
// dependencies (container runtime, credential-proxy, pricing) and notifies
// listeners on aggregate state transitions (spec.md §4.4).
package healthmon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeready-toolchain/creature-orchestrator/pkg/models"
)

// DefaultInterval is the default check cadence (spec.md §4.4).
const DefaultInterval = 15 * time.Second

// PerCheckTimeout bounds a single dependency check (spec.md §4.4, §5).
const PerCheckTimeout = 5 * time.Second

// Checker probes one dependency and returns its status.
type Checker func(ctx context.Context) models.DependencyStatus

// Listener is invoked with a deep snapshot whenever the aggregate status
// transitions between healthy and degraded.
type Listener func(snapshot map[string]models.DependencyStatus, aggregate models.AggregateStatus)

// Monitor owns the dependency status map, serialized by its own loop
// (spec.md §5 "Health map: serialized by the health loop").
type Monitor struct {
	interval time.Duration
	log      zerolog.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
	statuses map[string]models.DependencyStatus

	listenersMu sync.Mutex
	listeners   []Listener

	inFlight int32 // guards against overlapping runs (spec.md §4.4)

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor with the given checker set. interval <= 0 uses
// DefaultInterval.
func New(checkers map[string]Checker, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	statuses := make(map[string]models.DependencyStatus, len(checkers))
	for name := range checkers {
		statuses[name] = models.DependencyStatus{Status: models.DependencyUnknown}
	}
	return &Monitor{
		interval: interval,
		log:      log.With().Str("component", "healthmon").Logger(),
		checkers: checkers,
		statuses: statuses,
	}
}

// OnChange registers a listener for aggregate state transitions.
func (m *Monitor) OnChange(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// SetDependency lets components outside the checker set (e.g. the pricing
// loader, which updates health as a side effect of its own load cycle)
// report status directly.
func (m *Monitor) SetDependency(name string, status models.DependencyState, errMsg string) {
	m.mu.Lock()
	prevAgg := m.aggregateLocked()
	m.statuses[name] = models.DependencyStatus{
		Status:    status,
		LastCheck: time.Now().UTC().Format(time.RFC3339),
		Error:     errMsg,
	}
	newAgg := m.aggregateLocked()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if newAgg != prevAgg {
		m.notify(snapshot, newAgg)
	}
}

// Start launches the periodic check loop in a goroutine.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.runOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

// runOnce guards against concurrent overlap: if a previous run is still in
// flight it skips this tick (spec.md §4.4).
func (m *Monitor) runOnce(ctx context.Context) {
	if !m.tryEnter() {
		m.log.Debug().Msg("skipping health check, previous run still in flight")
		return
	}
	defer m.exit()

	m.mu.RLock()
	prevAgg := m.aggregateLocked()
	m.mu.RUnlock()

	for name, check := range m.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, PerCheckTimeout)
		status := check(checkCtx)
		cancel()
		if status.LastCheck == "" {
			status.LastCheck = time.Now().UTC().Format(time.RFC3339)
		}

		m.mu.Lock()
		m.statuses[name] = status
		m.mu.Unlock()
	}

	m.mu.RLock()
	newAgg := m.aggregateLocked()
	snapshot := m.snapshotLocked()
	m.mu.RUnlock()

	if newAgg != prevAgg {
		m.notify(snapshot, newAgg)
	}
}

func (m *Monitor) tryEnter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight != 0 {
		return false
	}
	m.inFlight = 1
	return true
}

func (m *Monitor) exit() {
	m.mu.Lock()
	m.inFlight = 0
	m.mu.Unlock()
}

// Snapshot returns a deep copy of the current dependency map and its
// aggregate status.
func (m *Monitor) Snapshot() (map[string]models.DependencyStatus, models.AggregateStatus) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), m.aggregateLocked()
}

func (m *Monitor) snapshotLocked() map[string]models.DependencyStatus {
	out := make(map[string]models.DependencyStatus, len(m.statuses))
	for k, v := range m.statuses {
		out[k] = v
	}
	return out
}

func (m *Monitor) aggregateLocked() models.AggregateStatus {
	for _, s := range m.statuses {
		if s.Status != models.DependencyUp {
			return models.AggregateDegraded
		}
	}
	return models.AggregateHealthy
}

func (m *Monitor) notify(snapshot map[string]models.DependencyStatus, agg models.AggregateStatus) {
	m.listenersMu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l(snapshot, agg)
	}
}
