package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rental is one borrowing of an item. At most one unreturned rental exists per item.
type Rental struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ItemID         uuid.UUID  `gorm:"column:item_id;type:uuid;not null;index;uniqueIndex:ux_rentals_active_item,where:is_returned = false"`
	BorrowerID     uuid.UUID  `gorm:"column:borrower_id;type:uuid;not null;index"`
	StartTime      time.Time  `gorm:"column:start_time;not null"`
	EndTime        time.Time  `gorm:"column:end_time;not null"`
	IsReturned     bool       `gorm:"column:is_returned;not null;default:false;index"`
	HasInsurance   bool       `gorm:"column:has_insurance;not null;default:false"`
	DamageReported bool       `gorm:"column:damage_reported;not null;default:false"`
	DeductedAmount int64      `gorm:"column:deducted_amount;not null;default:0"`
	AfterImageURL  *string    `gorm:"column:after_image_url"`
	ReminderSentAt *time.Time `gorm:"column:reminder_sent_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Rental) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
