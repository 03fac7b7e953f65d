package app

import (
	"context"

	"quotelens/internal/enrich"
	"quotelens/internal/extract"
	"quotelens/internal/model"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Delete(ctx context.Context, id string) error
}

type QuoteStore interface {
	CreateBatch(ctx context.Context, quotes []model.Quote) error
	ListByConversationID(ctx context.Context, conversationID string) ([]model.Quote, error)
	ListByDocumentID(ctx context.Context, documentID string) ([]model.Quote, error)
	CountByConversationID(ctx context.Context, conversationID string) (int64, error)
	SearchRanked(ctx context.Context, tsQuery string, limit int) ([]model.RankedQuote, error)
}

type ConversationStore interface {
	Create(ctx context.Context, conversation *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	GetOrCreate(ctx context.Context, id, title string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	AppendMessages(ctx context.Context, id string, expectedVersion int, messages []model.Message) error
	Delete(ctx context.Context, id string) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID string) error
}

// ConversationLocker serializes appends to one conversation. The returned
// function releases the lock.
type ConversationLocker interface {
	Lock(ctx context.Context, conversationID string) (func(), error)
}

type Extractor interface {
	Extract(ctx context.Context, path, mediaType string) extract.Result
}

type QuoteEnricher interface {
	EnhanceQuotes(ctx context.Context, quotes []enrich.Quote) []enrich.Quote
	EnrichQuotes(ctx context.Context, quotes []enrich.Quote) []enrich.Quote
}

// Archiver copies an uploaded original to durable storage and returns its location.
type Archiver interface {
	Archive(ctx context.Context, key, path, contentType string) (string, error)
}

// ArchiveRemover deletes an archived original by the location Archive returned.
type ArchiveRemover interface {
	DeleteLocation(ctx context.Context, location string) error
}

// Dispatcher hands an accepted upload to background processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.IngestJob) error
}
