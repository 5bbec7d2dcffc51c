package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const ResolutionStatusConfirmed = "CONFIRMED"

// Resolution records the settlement of a market, one row per market.
type Resolution struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID uint64 `gorm:"not null;uniqueIndex"`

	OutcomeName   string          `gorm:"type:varchar(50);not null"`
	ResolvedBy    string          `gorm:"type:varchar(50);not null;default:'chain'"`
	Confidence    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:1"`
	HumanVerified bool            `gorm:"not null;default:false"`
	Status        string          `gorm:"type:varchar(20);not null;default:'CONFIRMED'"`

	ResolvedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Resolution) TableName() string {
	return "resolutions"
}
