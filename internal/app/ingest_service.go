package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"quotelens/internal/ai"
	"quotelens/internal/enrich"
	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
	"quotelens/internal/segment"
)

const ProcessingMessage = "Documents are being processed in the background"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoFiles           = errors.New("no files uploaded")
	ErrTooManyFiles      = errors.New("too many files")
	ErrUnsupportedUpload = errors.New("unsupported upload")
)

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9.\-]`)

// IngestDeps are the collaborators of the orchestrator. Embedder and Archiver
// are optional.
type IngestDeps struct {
	Extractor     Extractor
	Enricher      QuoteEnricher
	Documents     DocumentStore
	Quotes        QuoteStore
	Conversations ConversationStore
	Embedder      ai.Embedder
	Archiver      Archiver
}

type IngestService struct {
	deps       IngestDeps
	filePool   *ants.Pool
	maxFiles   int
	dispatcher Dispatcher
	inflight   sync.WaitGroup
	logger     *slog.Logger
}

type AcceptInput struct {
	ConversationID string
	Files          []model.UploadedFile
}

type AcceptResult struct {
	ConversationID string   `json:"conversation_id"`
	Files          []string `json:"files"`
	Message        string   `json:"message"`
}

// FileOutcome reports what happened to one file of a job.
type FileOutcome struct {
	File         model.UploadedFile
	DocumentID   string
	Quotes       int
	FailedQuotes int
	Err          error
}

func NewIngestService(deps IngestDeps, fileWorkers, maxFiles int) (*IngestService, error) {
	if fileWorkers < 1 {
		fileWorkers = 1
	}
	pool, err := ants.NewPool(fileWorkers)
	if err != nil {
		return nil, fmt.Errorf("create file pool failed: %w", err)
	}
	s := &IngestService{
		deps:     deps,
		filePool: pool,
		maxFiles: maxFiles,
		logger:   logx.Component("ingest"),
	}
	s.dispatcher = s
	return s, nil
}

// SetDispatcher routes accepted jobs somewhere other than the local process,
// e.g. a message queue.
func (s *IngestService) SetDispatcher(d Dispatcher) {
	if d == nil {
		d = s
	}
	s.dispatcher = d
}

// Accept validates an upload, hands it to background processing and returns at once.
func (s *IngestService) Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error) {
	if len(input.Files) == 0 {
		return nil, ErrNoFiles
	}
	if s.maxFiles > 0 && len(input.Files) > s.maxFiles {
		return nil, ErrTooManyFiles
	}

	conversationID := strings.TrimSpace(input.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	} else if _, err := uuid.Parse(conversationID); err != nil {
		return nil, ErrInvalidInput
	}

	job := model.IngestJob{ConversationID: conversationID, Files: input.Files}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Warn("dispatch failed, processing in-process", "conversation_id", conversationID, "err", err)
		_ = s.Dispatch(ctx, job)
	}

	names := make([]string, 0, len(input.Files))
	for _, f := range input.Files {
		names = append(names, f.OriginalName)
	}
	return &AcceptResult{
		ConversationID: conversationID,
		Files:          names,
		Message:        ProcessingMessage,
	}, nil
}

// Dispatch runs the job in a detached goroutine. Wait blocks until all such jobs finish.
func (s *IngestService) Dispatch(_ context.Context, job model.IngestJob) error {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.Process(context.Background(), job)
	}()
	return nil
}

func (s *IngestService) Wait() {
	s.inflight.Wait()
}

func (s *IngestService) Close() {
	s.Wait()
	s.filePool.Release()
}

// Process ingests every file of the job in parallel. A failing file never
// affects its siblings.
func (s *IngestService) Process(ctx context.Context, job model.IngestJob) []FileOutcome {
	if job.ConversationID != "" {
		if _, err := s.deps.Conversations.GetOrCreate(ctx, job.ConversationID, dateTitle(time.Now())); err != nil {
			s.logger.Error("ensure conversation failed", "conversation_id", job.ConversationID, "err", err)
		}
	}

	outcomes := make([]FileOutcome, len(job.Files))
	var wg sync.WaitGroup
	for i, file := range job.Files {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes[i] = s.ProcessFile(ctx, job.ConversationID, file)
		}
		if err := s.filePool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	for _, out := range outcomes {
		if out.Err != nil {
			s.logger.Error("file ingestion failed", "file", out.File.OriginalName, "err", out.Err)
			continue
		}
		s.logger.Info("file ingested",
			"file", out.File.OriginalName,
			"document_id", out.DocumentID,
			"quotes", out.Quotes,
			"failed_quotes", out.FailedQuotes,
		)
	}
	return outcomes
}

// ProcessFile runs extraction, segmentation, enrichment and persistence for
// one file. The staged file is removed on every exit path.
func (s *IngestService) ProcessFile(ctx context.Context, conversationID string, file model.UploadedFile) (out FileOutcome) {
	out.File = file
	defer s.release(file)
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("process file panicked: %v", r)
		}
	}()

	res := s.deps.Extractor.Extract(ctx, file.Path, file.MediaType)
	text := res.Text
	if res.Failed() {
		s.logger.Warn("extraction failed", "file", file.OriginalName, "format", res.Format, "err", res.Err)
	} else {
		text = segment.StripHeadersAndFooters(text)
	}

	records := segment.Segment(segment.Normalize(text))
	quotes := make([]enrich.Quote, len(records))
	for i, r := range records {
		quotes[i] = enrich.Quote{Record: r}
	}
	quotes = s.deps.Enricher.EnhanceQuotes(ctx, quotes)
	quotes = s.deps.Enricher.EnrichQuotes(ctx, quotes)

	doc := &model.Document{
		OriginalName: file.OriginalName,
		StoragePath:  s.archive(ctx, conversationID, file),
		MediaType:    file.MediaType,
	}
	if res.Err != nil {
		doc.ExtractionError = res.Err.Error()
	}
	if err := s.deps.Documents.Create(ctx, doc); err != nil {
		out.Err = fmt.Errorf("create document failed: %w", err)
		return out
	}
	out.DocumentID = doc.ID

	rows := buildQuoteRows(doc.ID, conversationID, quotes)
	s.embed(ctx, rows)
	if err := s.deps.Quotes.CreateBatch(ctx, rows); err != nil {
		out.Err = fmt.Errorf("create quotes failed: %w", err)
		return out
	}

	out.Quotes = len(rows)
	for _, row := range rows {
		if row.Status == model.QuoteStatusFailed {
			out.FailedQuotes++
		}
	}
	return out
}

func buildQuoteRows(documentID, conversationID string, quotes []enrich.Quote) []model.Quote {
	rows := make([]model.Quote, 0, len(quotes))
	for _, q := range quotes {
		row := model.Quote{
			DocumentID:   stringPtr(documentID),
			OriginalText: q.OriginalText,
			Speaker:      q.Speaker,
			Position:     q.Position,
			Status:       model.QuoteStatusSuccess,
		}
		if conversationID != "" {
			row.ConversationID = stringPtr(conversationID)
		}
		if q.CleanedText != "" {
			row.CleanedText = stringPtr(q.CleanedText)
		}

		c := q.Classification
		if !c.OK() {
			row.Status = model.QuoteStatusFailed
			row.ErrorDetail = stringPtr(c.Error)
		} else {
			row.Category = stringPtr(c.Category)
			row.Subcategory = stringPtr(c.Subcategory)
			confidence := c.Confidence
			row.Confidence = &confidence
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *IngestService) embed(ctx context.Context, rows []model.Quote) {
	if s.deps.Embedder == nil || len(rows) == 0 {
		return
	}
	texts := make([]string, len(rows))
	for i := range rows {
		texts[i] = rows[i].Text()
	}
	vectors, err := s.deps.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logger.Warn("embed quotes failed", "err", err)
		return
	}
	if len(vectors) != len(rows) {
		s.logger.Warn("embed quotes returned wrong count", "want", len(rows), "got", len(vectors))
		return
	}
	for i := range rows {
		rows[i].Embedding = model.NewVector(vectors[i])
	}
}

func (s *IngestService) archive(ctx context.Context, conversationID string, file model.UploadedFile) string {
	if s.deps.Archiver == nil {
		return file.Path
	}
	prefix := conversationID
	if prefix == "" {
		prefix = "unscoped"
	}
	key := path.Join(prefix, SafeFileName(file.OriginalName, time.Now()))
	location, err := s.deps.Archiver.Archive(ctx, key, file.Path, file.MediaType)
	if err != nil {
		s.logger.Warn("archive upload failed", "file", file.OriginalName, "err", err)
		return file.Path
	}
	return location
}

func (s *IngestService) release(file model.UploadedFile) {
	if file.Path == "" {
		return
	}
	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove staged file failed", "path", file.Path, "err", err)
	}
}

// SafeFileName builds the staged name of an upload: a millisecond timestamp
// and the lower-cased original name restricted to [a-z0-9.-].
func SafeFileName(original string, now time.Time) string {
	name := unsafeNameChars.ReplaceAllString(strings.ToLower(original), "_")
	return fmt.Sprintf("%d-%s", now.UnixMilli(), name)
}

func dateTitle(now time.Time) string {
	return now.Format("2006-01-02")
}

func stringPtr(v string) *string {
	return &v
}
