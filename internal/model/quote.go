package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuoteStatus string

const (
	QuoteStatusPending QuoteStatus = "pending"
	QuoteStatusSuccess QuoteStatus = "success"
	QuoteStatusFailed  QuoteStatus = "failed"
)

// Quote is one attributable span of extracted text. Position is assigned in
// extraction order and defines retrieval ordering.
type Quote struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	DocumentID     *string     `gorm:"size:36;index" json:"document_id"`
	ConversationID *string     `gorm:"size:36;index" json:"conversation_id"`
	OriginalText   string      `gorm:"type:text;not null" json:"original_text"`
	CleanedText    *string     `gorm:"type:text" json:"cleaned_text"`
	Speaker        string      `gorm:"size:128;not null;default:unknown" json:"speaker"`
	Position       int         `gorm:"not null;index" json:"position"`
	Status         QuoteStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Category       *string     `gorm:"size:128" json:"category"`
	Subcategory    *string     `gorm:"size:128" json:"subcategory"`
	Confidence     *float64    `json:"confidence"`
	Embedding      *Vector     `json:"-"`
	ErrorDetail    *string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (q *Quote) BeforeCreate(_ *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = QuoteStatusPending
	}
	return nil
}

// Text returns the cleaned text, or the original when no cleaned text exists.
func (q *Quote) Text() string {
	if q.CleanedText != nil && *q.CleanedText != "" {
		return *q.CleanedText
	}
	return q.OriginalText
}

// RankedQuote is a keyword search hit.
type RankedQuote struct {
	Quote     `gorm:"embedded"`
	Relevance float64 `gorm:"column:relevance" json:"relevance"`
}
