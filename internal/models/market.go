package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	MarketStatusActive   = "ACTIVE"
	MarketStatusResolved = "RESOLVED"
)

// Market mirrors one on-chain market. ExternalID is the decimal-string
// on-chain market identifier; the unique index guarantees at most one row per
// on-chain id regardless of how often MarketCreated is replayed.
type Market struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ExternalID  string `gorm:"type:varchar(80);not null;uniqueIndex"`
	Question    string `gorm:"type:text;not null"`
	Description string `gorm:"type:text"`
	Category    string `gorm:"type:varchar(50);index"`
	OracleType  uint8  `gorm:"not null;default:0"`

	EndTime        time.Time  `gorm:"type:timestamptz;not null;index"`
	Status         string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	WinningOutcome *string    `gorm:"type:varchar(50)"`
	ResolvedAt     *time.Time `gorm:"type:timestamptz"`

	TotalStaked decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0"`
	TotalVolume decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0"`

	CreatorID uint64 `gorm:"not null;index"`
	Creator   *User  `gorm:"foreignKey:CreatorID"`

	CreatedBlock uint64         `gorm:"not null;default:0"`
	RawJSON      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Market) TableName() string {
	return "markets"
}
