// Package feature turns raw ticks and order book snapshots into the
// microstructure features the swarm consumes.
package feature

import (
	"math"

	"swarm_hft/internal/domain"
)

const (
	// DefaultWindow is the price history length used for slope and volatility.
	DefaultWindow = 10
	// imbalanceLevels is how many book levels per side feed the order flow imbalance.
	imbalanceLevels = 10
)

// Analyzer tracks one market's recent prices and book and derives its
// MarketContext. It is not safe for concurrent use; the sequencer owns it.
type Analyzer struct {
	prices *ringBuffer
	bids   []domain.BookLevel
	asks   []domain.BookLevel

	depth     float64
	prevDepth float64
	updates   uint64
}

var _ domain.FeatureSource = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer over a window of prices. window <= 0 uses DefaultWindow.
func NewAnalyzer(window int) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{prices: newRingBuffer(window)}
}

// Update records a trade price and replaces the book snapshot.
func (a *Analyzer) Update(price float64, bids, asks []domain.BookLevel) {
	a.prices.push(price)
	a.bids = append(a.bids[:0], bids...)
	a.asks = append(a.asks[:0], asks...)

	a.prevDepth = a.depth
	a.depth = sumVolume(a.bids) + sumVolume(a.asks)
	a.updates++
}

// Features returns the current market context.
func (a *Analyzer) Features() domain.MarketContext {
	price, _ := a.prices.last()
	return domain.MarketContext{
		Price:              price,
		BidAskSpread:       a.Spread(),
		OrderFlowImbalance: a.OrderFlowImbalance(),
		LiquidityShift:     a.LiquidityShift(),
		TrendlineSlope:     a.TrendlineSlope(),
		Volatility:         a.Volatility(),
	}
}

// Spread is best ask minus best bid, 0 when either side is empty.
func (a *Analyzer) Spread() float64 {
	if len(a.asks) == 0 || len(a.bids) == 0 {
		return 0
	}
	return a.asks[0].Price - a.bids[0].Price
}

// OrderFlowImbalance is the volume of the last imbalanceLevels bid levels
// minus that of the last imbalanceLevels ask levels.
func (a *Analyzer) OrderFlowImbalance() float64 {
	return sumVolume(tail(a.bids, imbalanceLevels)) - sumVolume(tail(a.asks, imbalanceLevels))
}

// LiquidityShift is the change in total book depth since the previous
// update. The first update reports the full depth.
func (a *Analyzer) LiquidityShift() float64 {
	return a.depth - a.prevDepth
}

// TrendlineSlope is the least-squares slope of the price window per update,
// 0 until the window is full.
func (a *Analyzer) TrendlineSlope() float64 {
	if !a.prices.full() {
		return 0
	}
	n := float64(a.prices.len())
	meanX := (n - 1) / 2
	meanY := a.mean()

	var num, den float64
	for i := 0; i < a.prices.len(); i++ {
		dx := float64(i) - meanX
		num += dx * (a.prices.at(i) - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Volatility is the population standard deviation of the price window,
// 0 until the window is full.
func (a *Analyzer) Volatility() float64 {
	if !a.prices.full() {
		return 0
	}
	mean := a.mean()
	var ss float64
	for i := 0; i < a.prices.len(); i++ {
		d := a.prices.at(i) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(a.prices.len()))
}

// Updates returns how many ticks have been observed.
func (a *Analyzer) Updates() uint64 { return a.updates }

func (a *Analyzer) mean() float64 {
	var sum float64
	for i := 0; i < a.prices.len(); i++ {
		sum += a.prices.at(i)
	}
	return sum / float64(a.prices.len())
}

func sumVolume(levels []domain.BookLevel) float64 {
	var v float64
	for _, l := range levels {
		v += l.Volume
	}
	return v
}

func tail(levels []domain.BookLevel, n int) []domain.BookLevel {
	if len(levels) > n {
		return levels[len(levels)-n:]
	}
	return levels
}
