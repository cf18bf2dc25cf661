// Package event defines the sequenced events consumed by the engine.
package event

import "swarm_hft/internal/domain"

// Type identifies an event kind on the wire and in the WAL.
type Type string

const (
	TypeMarketUpdate Type = "MARKET_UPDATE"
	TypeSystemHalt   Type = "SYSTEM_HALT"
)

// Event is implemented by every sequenced event.
type Event interface {
	GetSeq() uint64
	GetType() Type
	GetTs() int64
}

// BaseEvent carries the sequence number and the unix-micro timestamp.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (b BaseEvent) GetSeq() uint64 { return b.Seq }
func (b BaseEvent) GetTs() int64   { return b.Ts }

// MarketUpdateEvent is one tick: a trade price plus the current book.
type MarketUpdateEvent struct {
	BaseEvent
	Symbol   string             `json:"symbol"`
	Price    float64            `json:"price"`
	Bids     []domain.BookLevel `json:"bids"`
	Asks     []domain.BookLevel `json:"asks"`
	Exchange string             `json:"exchange"`
}

func (e *MarketUpdateEvent) GetType() Type { return TypeMarketUpdate }

// SystemHaltEvent asks the sequencer to stop after persisting it.
type SystemHaltEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

func (e *SystemHaltEvent) GetType() Type { return TypeSystemHalt }
