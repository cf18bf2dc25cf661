package infra

import (
	"math"
	"testing"
)

func TestMetrics_RecordIteration(t *testing.T) {
	m := NewMetrics()

	m.RecordIteration(1000, true, 0)
	m.RecordIteration(2000, false, 3)
	m.RecordIteration(3000, true, 1)

	snap := m.Snapshot()

	if snap.Iterations != 3 || snap.Trades != 2 || snap.NoTrades != 1 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	if snap.Degenerate != 4 {
		t.Errorf("Expected 4 degenerate scores, got %d", snap.Degenerate)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_GlobalBest(t *testing.T) {
	m := NewMetrics()

	if !math.IsInf(m.Snapshot().GlobalBest, -1) {
		t.Error("Expected -Inf before any observation")
	}

	m.ObserveFitness(10)
	m.ObserveFitness(5)
	m.ObserveFitness(math.NaN())
	m.ObserveFitness(math.Inf(1))

	if got := m.Snapshot().GlobalBest; got != 10 {
		t.Errorf("Expected 10, got %v", got)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent()
	m.RecordIteration(1000, true, 0)
	m.ObserveFitness(42)
	m.RecordError()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.EventsProcessed != 0 || snap.Iterations != 0 {
		t.Error("Expected 0 events after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
	if !math.IsInf(snap.GlobalBest, -1) {
		t.Error("Expected global best cleared after reset")
	}
}
