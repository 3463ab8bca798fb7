package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/sheerent-backend/pkg/db/types"
	"github.com/angelmondragon/sheerent-backend/pkg/enums"
)

// Item is a listed piece of equipment. Images[0] is the canonical "before" image.
type Item struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID          `gorm:"column:owner_id;type:uuid;not null;index"`
	Name           string             `gorm:"column:name;not null"`
	Description    string             `gorm:"column:description"`
	PricePerUnit   int64              `gorm:"column:price_per_unit;not null"`
	Unit           enums.ItemUnit     `gorm:"column:unit;type:text;not null"`
	Status         enums.ItemStatus   `gorm:"column:status;type:text;not null;index"`
	Images         dbtypes.StringList `gorm:"column:images;type:jsonb"`
	LockerNumber   *string            `gorm:"column:locker_number"`
	DamageReported bool               `gorm:"column:damage_reported;not null;default:false"`
	HasInsurance   bool               `gorm:"column:has_insurance;not null;default:false"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
