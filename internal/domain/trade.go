package domain

import "math"

// Direction of a trade proposal.
type Direction int

const (
	DirectionShort Direction = iota - 1
	DirectionFlat
	DirectionLong
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// VectorDim is the dimensionality of a trade in PSO space.
const VectorDim = 4

// Vector is a trade expressed as a PSO position: entry, target, stop, quantity.
type Vector [VectorDim]float64

// TradeProposal is one candidate trade.
type TradeProposal struct {
	Entry    float64 `json:"entry"`
	Target   float64 `json:"target"`
	Stop     float64 `json:"stop"`
	Quantity int64   `json:"quantity"`
}

// Direction is long when the target sits above entry, short when below.
func (t TradeProposal) Direction() Direction {
	switch {
	case t.Target > t.Entry:
		return DirectionLong
	case t.Target < t.Entry:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Valid reports whether target and stop sit on opposite sides of entry and
// the quantity is positive.
// - Long: target > entry > stop
// - Short: target < entry < stop
func (t TradeProposal) Valid() bool {
	if t.Quantity <= 0 {
		return false
	}
	switch t.Direction() {
	case DirectionLong:
		return t.Entry > t.Stop
	case DirectionShort:
		return t.Entry < t.Stop
	default:
		return false
	}
}

// Vector converts the trade into PSO position space.
func (t TradeProposal) Vector() Vector {
	return Vector{t.Entry, t.Target, t.Stop, float64(t.Quantity)}
}

// TradeFromVector converts a PSO position back into a trade, rounding the
// quantity to the nearest lot.
func TradeFromVector(v Vector) TradeProposal {
	return TradeProposal{
		Entry:    v[0],
		Target:   v[1],
		Stop:     v[2],
		Quantity: int64(math.Round(v[3])),
	}
}

// BestRecord pairs a trade with the fitness that produced it.
type BestRecord struct {
	Trade   TradeProposal `json:"trade"`
	Fitness float64       `json:"fitness"`
	Set     bool          `json:"set"`
}

// EmptyBest returns the -Inf sentinel every best record starts from.
func EmptyBest() BestRecord {
	return BestRecord{Fitness: math.Inf(-1)}
}

// Improves reports whether fitness strictly beats the record. Ties keep the
// existing record and non-finite scores never improve it.
func (b BestRecord) Improves(fitness float64) bool {
	return IsFinite(fitness) && fitness > b.Fitness
}

// Decision is the consensus result of one swarm iteration.
type Decision struct {
	Trade      TradeProposal `json:"trade"`
	Fitness    float64       `json:"fitness"`
	Agent      int           `json:"agent"` // -1 for no trade
	Iteration  uint64        `json:"iteration"`
	Degenerate int           `json:"degenerate"` // proposals excluded for NaN/Inf fitness
}

// NoTrade is the sentinel returned when no agent produced a usable proposal.
var NoTrade = Decision{Agent: -1, Fitness: math.Inf(-1)}

// IsNoTrade reports whether d is the no-trade sentinel.
func (d Decision) IsNoTrade() bool {
	return d.Agent < 0
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
