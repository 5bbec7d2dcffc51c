package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one possible result of a market. Idx is the zero-based on-chain
// outcome index, fixed at market-creation time; (market_id, idx) is unique so
// the same event index always maps to the same row.
type Outcome struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID uint64 `gorm:"not null;uniqueIndex:uq_outcome_market_idx,priority:1;index"`
	Idx      int    `gorm:"not null;uniqueIndex:uq_outcome_market_idx,priority:2"`
	Name     string `gorm:"type:varchar(50);not null"`

	Probability decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0.5"`
	TotalStaked decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0"`
	IsWinning   bool            `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Outcome) TableName() string {
	return "outcomes"
}
