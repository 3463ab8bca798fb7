package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OverdueNotice records one reminder raised for a rental past its end time.
// Notices are kept apart from messages, which only carry damage reports.
type OverdueNotice struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RentalID   uuid.UUID `gorm:"column:rental_id;type:uuid;not null;index" json:"rental_id"`
	BorrowerID uuid.UUID `gorm:"column:borrower_id;type:uuid;not null;index" json:"borrower_id"`
	ItemID     uuid.UUID `gorm:"column:item_id;type:uuid;not null" json:"item_id"`
	DueAt      time.Time `gorm:"column:due_at;not null" json:"due_at"`
	LateHours  int64     `gorm:"column:late_hours;not null" json:"late_hours"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (n *OverdueNotice) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
