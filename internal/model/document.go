package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document is one uploaded file. Deleting it removes its quotes.
type Document struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	OriginalName    string    `gorm:"size:255;not null" json:"original_name"`
	StoragePath     string    `gorm:"size:512;not null" json:"storage_path"`
	MediaType       string    `gorm:"size:128" json:"media_type"`
	ExtractionError string    `gorm:"type:text" json:"extraction_error,omitempty"`
	UploadedAt      time.Time `gorm:"not null" json:"uploaded_at"`

	Quotes []Quote `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	return nil
}
