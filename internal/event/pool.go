package event

import (
	"sync"
)

// marketUpdatePool reduces GC pressure for the tick hot path.
//
// Usage:
//
//	ev := AcquireMarketUpdateEvent()
//	ev.Symbol = "BTCUSDT"
//	ev.Bids = append(ev.Bids, domain.BookLevel{Price: 99.9, Volume: 3})
//	inbox <- ev // the sequencer releases it after processing
var marketUpdatePool = sync.Pool{
	New: func() interface{} {
		return &MarketUpdateEvent{}
	},
}

// AcquireMarketUpdateEvent gets a MarketUpdateEvent from the pool.
// The returned event has zero values; book slices keep their capacity.
func AcquireMarketUpdateEvent() *MarketUpdateEvent {
	return marketUpdatePool.Get().(*MarketUpdateEvent)
}

// ReleaseMarketUpdateEvent resets ev and returns it to the pool.
func ReleaseMarketUpdateEvent(ev *MarketUpdateEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = 0
	ev.Symbol = ""
	ev.Price = 0
	ev.Bids = ev.Bids[:0]
	ev.Asks = ev.Asks[:0]
	ev.Exchange = ""

	marketUpdatePool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*MarketUpdateEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireMarketUpdateEvent())
	}
	for _, ev := range evs {
		ReleaseMarketUpdateEvent(ev)
	}
}
