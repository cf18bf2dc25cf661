package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionRecord is a persisted consensus trade.
type DecisionRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SessionID  string          `gorm:"index" json:"session_id"`
	Symbol     string          `gorm:"index" json:"symbol"`
	Seq        uint64          `gorm:"index" json:"seq"` // Event sequence that produced the decision
	Iteration  uint64          `json:"iteration"`
	Side       string          `json:"side"` // "BUY" or "SELL"
	Entry      decimal.Decimal `gorm:"type:decimal(24,8)" json:"entry"`
	Target     decimal.Decimal `gorm:"type:decimal(24,8)" json:"target"`
	Stop       decimal.Decimal `gorm:"type:decimal(24,8)" json:"stop"`
	Quantity   int64           `json:"quantity"`
	Fitness    float64         `json:"fitness"`
	Agent      int             `json:"agent"`
	Degenerate int             `json:"degenerate"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EventRecord is the write-ahead log row of a sequenced event.
type EventRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Type      string `gorm:"index" json:"type"`
	TsUnixM   int64  `json:"ts"`
	Payload   []byte `json:"payload"`
	CreatedAt time.Time
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
