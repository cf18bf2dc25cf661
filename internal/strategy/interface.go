package strategy

import (
	"github.com/shopspring/decimal"

	"swarm_hft/internal/domain"
)

// ActionType defines the type of trading action
type ActionType int

const (
	ActionBuy  ActionType = iota + 1
	ActionSell            // Sell
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Action represents a decision made by the strategy
type Action struct {
	Type   ActionType
	Symbol string
	Entry  decimal.Decimal
	Target decimal.Decimal
	Stop   decimal.Decimal
	Qty    int64

	// Provenance of the consensus trade
	Fitness    float64
	Agent      int
	Iteration  uint64
	Degenerate int
}

// Strategy is the interface that all trading strategies must implement.
// It is called synchronously by the Sequencer.
type Strategy interface {
	// OnMarketUpdate is called when a market data update is received.
	// It returns a list of Actions to be executed. An error is an invariant
	// violation and halts the sequencer.
	OnMarketUpdate(state domain.MarketState) ([]Action, error)
}

// StateDumper is implemented by strategies that expose internal state for
// post-mortem dumps.
type StateDumper interface {
	DumpState() any
}
