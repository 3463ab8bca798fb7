package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sheerent-backend/pkg/enums"
)

// LedgerEntry records an immutable point debit. RentalID is a soft reference so
// entries outlive administrative rental deletion.
type LedgerEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	RentalID     *uuid.UUID            `gorm:"column:rental_id;type:uuid" json:"rental_id"`
	Type         enums.LedgerEntryType `gorm:"column:type;type:text;not null" json:"type"`
	Amount       int64                 `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64                 `gorm:"column:balance_after;not null" json:"balance_after"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
