package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation owns an append-only message log. Version increases on every
// append and guards concurrent writers.
type Conversation struct {
	ID        string                       `gorm:"primaryKey;size:36" json:"id"`
	Title     string                       `gorm:"size:255;not null" json:"title"`
	Messages  datatypes.JSONSlice[Message] `json:"messages"`
	Version   int                          `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `gorm:"index" json:"updated_at"`

	Quotes []Quote `gorm:"foreignKey:ConversationID;constraint:OnDelete:SET NULL" json:"-"`
}

func (c *Conversation) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Messages == nil {
		c.Messages = datatypes.JSONSlice[Message]{}
	}
	return nil
}
