package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PredictionStatusActive = "ACTIVE"

// Prediction mirrors one PredictionPlaced event. TxHash is the dedup key: the
// unique index rejects a re-delivered transaction so counters are never
// double-incremented.
type Prediction struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID  uint64 `gorm:"not null;index"`
	OutcomeID uint64 `gorm:"not null;index"`
	UserID    uint64 `gorm:"not null;index"`

	Amount          decimal.Decimal `gorm:"type:numeric(38,18);not null"`
	Odds            decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	PotentialPayout decimal.Decimal `gorm:"type:numeric(38,18);not null"`

	TxHash      string `gorm:"type:varchar(80);not null;uniqueIndex"`
	LogIndex    uint   `gorm:"not null;default:0"`
	BlockNumber uint64 `gorm:"not null;default:0;index"`

	Status    string    `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Prediction) TableName() string {
	return "predictions"
}
