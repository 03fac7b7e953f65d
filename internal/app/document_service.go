package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentService struct {
	documents DocumentStore
	quotes    QuoteStore
	archive   ArchiveRemover
	logger    *slog.Logger
}

// NewDocumentService builds the service. archive may be nil.
func NewDocumentService(documents DocumentStore, quotes QuoteStore, archive ArchiveRemover) *DocumentService {
	return &DocumentService{
		documents: documents,
		quotes:    quotes,
		archive:   archive,
		logger:    logx.Component("document"),
	}
}

func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	docs, err := s.documents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) ListQuotes(ctx context.Context, id string) ([]model.Quote, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	quotes, err := s.quotes.ListByDocumentID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list quotes failed: %w", err)
	}
	return quotes, nil
}

// Delete removes the document with its quotes and, when archived, its original.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	if s.archive != nil {
		if err := s.archive.DeleteLocation(ctx, doc.StoragePath); err != nil {
			s.logger.Warn("delete archived original failed", "document_id", id, "location", doc.StoragePath, "err", err)
		}
	}
	return nil
}
