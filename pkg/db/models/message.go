package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is an in-app notification record. A nil SenderID marks a system message.
type Message struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SenderID   *uuid.UUID `gorm:"column:sender_id;type:uuid" json:"sender_id"`
	ReceiverID uuid.UUID  `gorm:"column:receiver_id;type:uuid;not null;index" json:"receiver_id"`
	Content    string     `gorm:"column:content;type:text;not null" json:"content"`
	IsRead     bool       `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
