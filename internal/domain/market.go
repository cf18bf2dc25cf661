package domain

import "fmt"

// Feature keys of the external market context mapping.
const (
	FeaturePrice              = "price"
	FeatureBidAskSpread       = "bid_ask_spread"
	FeatureOrderFlowImbalance = "order_flow_imbalance"
	FeatureLiquidityShift     = "liquidity_shift"
	FeatureTrendlineSlope     = "trendline_slope"
	FeatureVolatility         = "volatility"
)

// LiveFeatures is the number of state slots sourced from a MarketContext.
// Any remaining slots of a state vector are zero padding.
const LiveFeatures = 6

// MarketContext holds the microstructure features of one market update.
type MarketContext struct {
	Price              float64 `json:"price"`
	BidAskSpread       float64 `json:"bid_ask_spread"`
	OrderFlowImbalance float64 `json:"order_flow_imbalance"`
	LiquidityShift     float64 `json:"liquidity_shift"`
	TrendlineSlope     float64 `json:"trendline_slope"`
	Volatility         float64 `json:"volatility"`
}

// MarketContextFromMap builds a MarketContext from the key/value form.
// Every feature key is required.
func MarketContextFromMap(m map[string]float64) (MarketContext, error) {
	var c MarketContext
	fields := []struct {
		key string
		dst *float64
	}{
		{FeaturePrice, &c.Price},
		{FeatureBidAskSpread, &c.BidAskSpread},
		{FeatureOrderFlowImbalance, &c.OrderFlowImbalance},
		{FeatureLiquidityShift, &c.LiquidityShift},
		{FeatureTrendlineSlope, &c.TrendlineSlope},
		{FeatureVolatility, &c.Volatility},
	}
	for _, f := range fields {
		v, ok := m[f.key]
		if !ok {
			return MarketContext{}, fmt.Errorf("%w: %s", ErrMissingFeature, f.key)
		}
		*f.dst = v
	}
	return c, nil
}

// StateVector lays the six live features out in fixed order and pads the
// rest of the vector with zeros up to dim.
func (c MarketContext) StateVector(dim int) ([]float64, error) {
	if dim < LiveFeatures {
		return nil, &DimensionError{Op: "extract_state", Want: dim, Got: LiveFeatures}
	}
	state := make([]float64, dim)
	state[0] = c.Price
	state[1] = c.BidAskSpread
	state[2] = c.OrderFlowImbalance
	state[3] = c.LiquidityShift
	state[4] = c.TrendlineSlope
	state[5] = c.Volatility
	return state, nil
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// MarketState holds the current state of a single market.
type MarketState struct {
	Features        MarketContext `json:"features"`
	LastUpdateUnixM int64         `json:"last_update"`
	Ticks           uint64        `json:"ticks"`
	Symbol          string        `json:"symbol"`
}
