package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
	"quotelens/internal/repository"
)

const DefaultConversationTitle = "New Conversation"

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationService owns the message log of every conversation. Appends are
// serialized by an optional lock and guarded by the version column.
type ConversationService struct {
	store           ConversationStore
	quotes          QuoteStore
	cache           HistoryCache
	locker          ConversationLocker
	conflictRetries int
	now             func() time.Time
	logger          *slog.Logger
}

// NewConversationService builds the service. cache and locker may be nil.
func NewConversationService(store ConversationStore, quotes QuoteStore, cache HistoryCache, locker ConversationLocker, conflictRetries int) *ConversationService {
	if conflictRetries < 0 {
		conflictRetries = 0
	}
	return &ConversationService{
		store:           store,
		quotes:          quotes,
		cache:           cache,
		locker:          locker,
		conflictRetries: conflictRetries,
		now:             time.Now,
		logger:          logx.Component("conversation"),
	}
}

func (s *ConversationService) Create(ctx context.Context, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultConversationTitle
	}
	conversation := &model.Conversation{Title: title}
	if err := s.store.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("create conversation failed: %w", err)
	}
	return conversation, nil
}

func (s *ConversationService) List(ctx context.Context) ([]model.Conversation, error) {
	conversations, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return conversations, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conversation, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// GetOrCreate loads the conversation, creating it titled with today's date.
func (s *ConversationService) GetOrCreate(ctx context.Context, id string) (*model.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	conversation, err := s.store.GetOrCreate(ctx, id, dateTitle(s.now()))
	if err != nil {
		return nil, fmt.Errorf("load conversation failed: %w", err)
	}
	return conversation, nil
}

// ListQuotes returns the quotes of a conversation ordered by position.
func (s *ConversationService) ListQuotes(ctx context.Context, id string) ([]model.Quote, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	quotes, err := s.quotes.ListByConversationID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list quotes failed: %w", err)
	}
	return quotes, nil
}

// History returns the message log, served from the cache when possible.
func (s *ConversationService) History(ctx context.Context, id string) ([]model.Message, error) {
	if s.cache != nil {
		messages, ok, err := s.cache.GetHistory(ctx, id)
		if err != nil {
			s.logger.Warn("read history cache failed", "conversation_id", id, "err", err)
		} else if ok {
			return messages, nil
		}
	}

	conversation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages := []model.Message(conversation.Messages)
	s.cacheHistory(ctx, id, messages)
	return messages, nil
}

// AppendTurn appends a question and its answer as one atomic update.
func (s *ConversationService) AppendTurn(ctx context.Context, id, question, answer string) (*model.Conversation, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lock conversation failed: %w", err)
		}
		defer unlock()
	}

	for attempt := 0; attempt <= s.conflictRetries; attempt++ {
		conversation, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		now := s.now()
		messages := make([]model.Message, 0, len(conversation.Messages)+2)
		messages = append(messages, conversation.Messages...)
		messages = append(messages,
			model.Message{Role: model.RoleUser, Content: question, Timestamp: now},
			model.Message{Role: model.RoleAssistant, Content: answer, Timestamp: now},
		)

		err = s.store.AppendMessages(ctx, id, conversation.Version, messages)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.logger.Debug("conversation append conflict", "conversation_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("append messages failed: %w", err)
		}

		conversation.Messages = messages
		conversation.Version++
		conversation.UpdatedAt = now
		s.cacheHistory(ctx, id, messages)
		return conversation, nil
	}
	return nil, fmt.Errorf("append messages failed: %w", repository.ErrVersionConflict)
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete conversation failed: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.DeleteHistory(ctx, id); err != nil {
			s.logger.Warn("drop history cache failed", "conversation_id", id, "err", err)
		}
	}
	return nil
}

// IngestStatus reports how many quotes a conversation has so far. Clients
// poll it after an upload.
type IngestStatus struct {
	ConversationID string `json:"conversation_id"`
	QuoteCount     int64  `json:"quote_count"`
	Ready          bool   `json:"ready"`
}

func (s *ConversationService) Status(ctx context.Context, id string) (*IngestStatus, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	count, err := s.quotes.CountByConversationID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count quotes failed: %w", err)
	}
	return &IngestStatus{ConversationID: id, QuoteCount: count, Ready: count > 0}, nil
}

func (s *ConversationService) cacheHistory(ctx context.Context, id string, messages []model.Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetHistory(ctx, id, messages); err != nil {
		s.logger.Warn("write history cache failed", "conversation_id", id, "err", err)
	}
}
