package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncState is an observability watermark for the mirror, not a resume
// cursor: backfill start selection is derived from mirrored market data.
type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text"`
	LastBlock     uint64         `gorm:"not null;default:0"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
