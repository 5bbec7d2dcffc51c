package models

import (
	"time"
)

// User rows are created implicitly on the first observed event referencing a
// wallet address. Addresses are stored lower-cased; the unique index makes
// concurrent find-or-create attempts collapse to a single row.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Address   string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
