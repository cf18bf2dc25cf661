package engine

import (
	"context"
	"testing"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/event"
)

// BenchmarkSequencer_ProcessEvent measures hot path event processing speed
// without a strategy.
func BenchmarkSequencer_ProcessEvent(b *testing.B) {
	seq := NewSequencer(1000, nil, nil)

	ev := event.AcquireMarketUpdateEvent()
	ev.Seq = 1
	ev.Ts = 1000
	ev.Symbol = "BTCUSDT"
	ev.Price = 50000
	ev.Bids = append(ev.Bids, domain.BookLevel{Price: 49999, Volume: 2})
	ev.Asks = append(ev.Asks, domain.BookLevel{Price: 50001, Volume: 1})
	ev.Exchange = "SIM"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev.Seq = uint64(i + 1)
		seq.nextSeq = uint64(i + 1) // Align sequence to avoid gap panic

		seq.handleMarketUpdate(ev)
	}

	event.ReleaseMarketUpdateEvent(ev)
}

// BenchmarkSequencer_FullPipeline measures end-to-end event processing.
// Note: This benchmark includes channel overhead.
func BenchmarkSequencer_FullPipeline(b *testing.B) {
	seq := NewSequencer(b.N+100, nil, nil)
	inbox := seq.Inbox()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev := event.AcquireMarketUpdateEvent()
		ev.Seq = uint64(i + 1)
		ev.Ts = int64(i)
		ev.Symbol = "BTCUSDT"
		ev.Price = 50000
		ev.Exchange = "SIM"

		inbox <- ev
	}
}
