package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"quotelens/internal/model"
)

const quoteBatchSize = 100

type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) CreateBatch(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&quotes, quoteBatchSize).Error; err != nil {
		return fmt.Errorf("create quotes batch failed: %w", err)
	}
	return nil
}

// ListByConversationID returns the conversation's quotes in position order.
func (r *QuoteRepository) ListByConversationID(ctx context.Context, conversationID string) ([]model.Quote, error) {
	var quotes []model.Quote
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("position ASC").
		Order("created_at ASC").
		Find(&quotes).Error
	if err != nil {
		return nil, fmt.Errorf("list quotes by conversation failed: %w", err)
	}
	return quotes, nil
}

func (r *QuoteRepository) ListByDocumentID(ctx context.Context, documentID string) ([]model.Quote, error) {
	var quotes []model.Quote
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("position ASC").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("list quotes by document failed: %w", err)
	}
	return quotes, nil
}

func (r *QuoteRepository) CountByConversationID(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Quote{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count quotes failed: %w", err)
	}
	return count, nil
}

// SearchRanked runs a ranked full-text match over cleaned quote text.
// tsQuery uses the "a & b & c" form; on mysql it is rewritten to a
// boolean-mode expression requiring every term.
func (r *QuoteRepository) SearchRanked(ctx context.Context, tsQuery string, limit int) ([]model.RankedQuote, error) {
	var rows []model.RankedQuote
	db := r.db.WithContext(ctx)

	var err error
	switch r.db.Dialector.Name() {
	case "mysql":
		expr := BooleanModeQuery(tsQuery)
		err = db.Raw(
			"SELECT quotes.*, MATCH(cleaned_text) AGAINST (? IN BOOLEAN MODE) AS relevance "+
				"FROM quotes WHERE MATCH(cleaned_text) AGAINST (? IN BOOLEAN MODE) "+
				"ORDER BY relevance DESC LIMIT ?",
			expr, expr, limit,
		).Scan(&rows).Error
	default:
		err = db.Raw(
			"SELECT quotes.*, ts_rank(to_tsvector('english', coalesce(cleaned_text, '')), to_tsquery('english', ?)) AS relevance "+
				"FROM quotes WHERE to_tsvector('english', coalesce(cleaned_text, '')) @@ to_tsquery('english', ?) "+
				"ORDER BY relevance DESC LIMIT ?",
			tsQuery, tsQuery, limit,
		).Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("search quotes failed: %w", err)
	}
	return rows, nil
}

// BooleanModeQuery converts "a & b" into "+a +b".
func BooleanModeQuery(tsQuery string) string {
	parts := strings.Split(tsQuery, "&")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		terms = append(terms, "+"+p)
	}
	return strings.Join(terms, " ")
}

// EnsureSearchIndex creates the full-text index used by SearchRanked.
func EnsureSearchIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "mysql":
		if db.Migrator().HasIndex(&model.Quote{}, "idx_quotes_cleaned_text_ft") {
			return nil
		}
		if err := db.Exec("CREATE FULLTEXT INDEX idx_quotes_cleaned_text_ft ON quotes (cleaned_text)").Error; err != nil {
			return fmt.Errorf("create fulltext index failed: %w", err)
		}
	case "postgres":
		err := db.Exec("CREATE INDEX IF NOT EXISTS idx_quotes_cleaned_text_fts ON quotes " +
			"USING GIN (to_tsvector('english', coalesce(cleaned_text, '')))").Error
		if err != nil {
			return fmt.Errorf("create fulltext index failed: %w", err)
		}
	}
	return nil
}
