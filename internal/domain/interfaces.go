package domain

import "context"

// ExchangeWorker defines the interface for exchange WebSocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// FeatureSource produces the market context consumed by the swarm.
type FeatureSource interface {
	Update(price float64, bids, asks []BookLevel)
	Features() MarketContext
}

// DecisionRepository persists consensus decisions.
type DecisionRepository interface {
	SaveDecision(ctx context.Context, rec *DecisionRecord) error
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error)
}
