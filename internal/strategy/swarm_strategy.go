package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/swarm"
)

// SwarmFactory builds the swarm that trades one symbol.
type SwarmFactory func(symbol string) (*swarm.Swarm, error)

// DecisionObserver is notified after every swarm iteration, trade or not.
type DecisionObserver func(symbol string, d domain.Decision, elapsed time.Duration)

// SwarmStrategy runs one swarm iteration per market update. Each symbol gets
// its own swarm, built on first sight.
type SwarmStrategy struct {
	factory  SwarmFactory
	swarms   map[string]*swarm.Swarm
	observer DecisionObserver
}

var (
	_ Strategy    = (*SwarmStrategy)(nil)
	_ StateDumper = (*SwarmStrategy)(nil)
)

// NewSwarmStrategy creates the strategy. observer may be nil.
func NewSwarmStrategy(factory SwarmFactory, observer DecisionObserver) *SwarmStrategy {
	return &SwarmStrategy{
		factory:  factory,
		swarms:   make(map[string]*swarm.Swarm),
		observer: observer,
	}
}

// OnMarketUpdate runs the symbol's swarm on the current features and emits
// at most one action.
func (s *SwarmStrategy) OnMarketUpdate(state domain.MarketState) ([]Action, error) {
	sw, err := s.swarmFor(state.Symbol)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	decision, err := sw.RunIteration(state.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", state.Symbol, err)
	}
	if s.observer != nil {
		s.observer(state.Symbol, decision, time.Since(start))
	}

	if decision.IsNoTrade() {
		return nil, nil
	}
	if !decision.Trade.Valid() {
		slog.Warn("Consensus trade skipped",
			slog.String("symbol", state.Symbol),
			slog.Any("trade", decision.Trade))
		return nil, nil
	}
	return []Action{ToAction(state.Symbol, decision)}, nil
}

// Swarm returns the swarm of symbol, if one was built.
func (s *SwarmStrategy) Swarm(symbol string) (*swarm.Swarm, bool) {
	sw, ok := s.swarms[symbol]
	return sw, ok
}

// DumpState returns a snapshot of every swarm keyed by symbol.
func (s *SwarmStrategy) DumpState() any {
	out := make(map[string]swarm.Snapshot, len(s.swarms))
	for sym, sw := range s.swarms {
		out[sym] = sw.Snapshot()
	}
	return out
}

func (s *SwarmStrategy) swarmFor(symbol string) (*swarm.Swarm, error) {
	if sw, ok := s.swarms[symbol]; ok {
		return sw, nil
	}
	sw, err := s.factory(symbol)
	if err != nil {
		return nil, fmt.Errorf("build swarm for %s: %w", symbol, err)
	}
	s.swarms[symbol] = sw
	slog.Info("Swarm created", slog.String("symbol", symbol), slog.Int("agents", sw.Len()))
	return sw, nil
}

// ToAction converts a consensus decision into a decimal-priced action.
func ToAction(symbol string, d domain.Decision) Action {
	typ := ActionBuy
	if d.Trade.Direction() == domain.DirectionShort {
		typ = ActionSell
	}
	return Action{
		Type:       typ,
		Symbol:     symbol,
		Entry:      decimal.NewFromFloat(d.Trade.Entry),
		Target:     decimal.NewFromFloat(d.Trade.Target),
		Stop:       decimal.NewFromFloat(d.Trade.Stop),
		Qty:        d.Trade.Quantity,
		Fitness:    d.Fitness,
		Agent:      d.Agent,
		Iteration:  d.Iteration,
		Degenerate: d.Degenerate,
	}
}
