package infra

import (
	"math"
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	iterations      atomic.Uint64
	trades          atomic.Uint64
	noTrades        atomic.Uint64
	degenerate      atomic.Uint64
	errorsTotal     atomic.Uint64

	// Iteration latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	globalBestBits    atomic.Uint64 // math.Float64bits of the best fitness seen
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = NewMetrics()

// NewMetrics returns zeroed metrics with an unset global best.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.globalBestBits.Store(math.Float64bits(math.Inf(-1)))
	return m
}

// RecordEvent records one sequenced event.
func (m *Metrics) RecordEvent() {
	m.eventsProcessed.Add(1)
}

// RecordIteration records one swarm iteration with its latency.
func (m *Metrics) RecordIteration(latencyNs int64, traded bool, degenerate int) {
	m.iterations.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
	if traded {
		m.trades.Add(1)
	} else {
		m.noTrades.Add(1)
	}
	if degenerate > 0 {
		m.degenerate.Add(uint64(degenerate))
	}
}

// ObserveFitness raises the global-best gauge if fitness exceeds it.
func (m *Metrics) ObserveFitness(fitness float64) {
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return
	}
	for {
		old := m.globalBestBits.Load()
		if fitness <= math.Float64frombits(old) {
			return
		}
		if m.globalBestBits.CompareAndSwap(old, math.Float64bits(fitness)) {
			return
		}
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64
	Iterations        uint64
	Trades            uint64
	NoTrades          uint64
	Degenerate        uint64
	ErrorsTotal       uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	GlobalBest        float64 // -Inf until a finite fitness is observed
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		Iterations:        m.iterations.Load(),
		Trades:            m.trades.Load(),
		NoTrades:          m.noTrades.Load(),
		Degenerate:        m.degenerate.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		GlobalBest:        math.Float64frombits(m.globalBestBits.Load()),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.iterations.Store(0)
	m.trades.Store(0)
	m.noTrades.Store(0)
	m.degenerate.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.globalBestBits.Store(math.Float64bits(math.Inf(-1)))
}
