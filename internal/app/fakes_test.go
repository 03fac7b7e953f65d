package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"quotelens/internal/ai"
	"quotelens/internal/extract"
	"quotelens/internal/model"
	"quotelens/internal/repository"
)

// memStore keeps documents, quotes and conversations in memory.
type memStore struct {
	mu            sync.Mutex
	documents     map[string]model.Document
	quotes        []model.Quote
	conversations map[string]model.Conversation
	conflicts     int
	appendErr     error
}

func newMemStore() *memStore {
	return &memStore{
		documents:     map[string]model.Document{},
		conversations: map[string]model.Conversation{},
	}
}

func (m *memStore) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.UploadedAt = time.Now()
	m.documents[doc.ID] = *doc
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *memStore) List(ctx context.Context) ([]model.Document, error) {
	return m.allDocuments(), nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	kept := m.quotes[:0]
	for _, q := range m.quotes {
		if q.DocumentID == nil || *q.DocumentID != id {
			kept = append(kept, q)
		}
	}
	m.quotes = kept
	return nil
}

func (m *memStore) CreateBatch(ctx context.Context, quotes []model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range quotes {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		m.quotes = append(m.quotes, q)
	}
	return nil
}

func (m *memStore) ListByConversationID(ctx context.Context, conversationID string) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quote
	for _, q := range m.quotes {
		if q.ConversationID != nil && *q.ConversationID == conversationID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) ListByDocumentID(ctx context.Context, documentID string) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quote
	for _, q := range m.quotes {
		if q.DocumentID != nil && *q.DocumentID == documentID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) CountByConversationID(ctx context.Context, conversationID string) (int64, error) {
	quotes, err := m.ListByConversationID(ctx, conversationID)
	return int64(len(quotes)), err
}

func (m *memStore) SearchRanked(ctx context.Context, tsQuery string, limit int) ([]model.RankedQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	terms := strings.Split(tsQuery, " & ")
	var out []model.RankedQuote
	for _, q := range m.quotes {
		text := strings.ToLower(q.Text())
		matched := true
		for _, t := range terms {
			if !strings.Contains(text, t) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, model.RankedQuote{Quote: q, Relevance: 1})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) conversationStore() *memConversations {
	return &memConversations{m}
}

func (m *memStore) allQuotes() []model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Quote(nil), m.quotes...)
}

func (m *memStore) allDocuments() []model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, d)
	}
	return out
}

// memConversations shares memStore state but exposes the conversation methods,
// whose names collide with the document store methods.
type memConversations struct {
	*memStore
}

func (c *memConversations) Create(ctx context.Context, conversation *model.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if conversation.Messages == nil {
		conversation.Messages = datatypes.JSONSlice[model.Message]{}
	}
	c.conversations[conversation.ID] = *conversation
	return nil
}

func (c *memConversations) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conversation, ok := c.conversations[id]
	if !ok {
		return nil, nil
	}
	conversation.Messages = append(datatypes.JSONSlice[model.Message]{}, conversation.Messages...)
	return &conversation, nil
}

func (c *memConversations) GetOrCreate(ctx context.Context, id, title string) (*model.Conversation, error) {
	c.mu.Lock()
	if _, ok := c.conversations[id]; !ok {
		c.conversations[id] = model.Conversation{ID: id, Title: title, Messages: datatypes.JSONSlice[model.Message]{}}
	}
	c.mu.Unlock()
	return c.GetByID(ctx, id)
}

func (c *memConversations) List(ctx context.Context) ([]model.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Conversation, 0, len(c.conversations))
	for _, conversation := range c.conversations {
		out = append(out, conversation)
	}
	return out, nil
}

func (c *memConversations) AppendMessages(ctx context.Context, id string, expectedVersion int, messages []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.appendErr != nil {
		return c.appendErr
	}
	conversation, ok := c.conversations[id]
	if !ok {
		return errors.New("conversation missing")
	}
	if c.conflicts > 0 {
		c.conflicts--
		conversation.Version++
		c.conversations[id] = conversation
		return repository.ErrVersionConflict
	}
	if conversation.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	conversation.Messages = append(datatypes.JSONSlice[model.Message]{}, messages...)
	conversation.Version++
	c.conversations[id] = conversation
	return nil
}

func (c *memConversations) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, id)
	for i := range c.quotes {
		if c.quotes[i].ConversationID != nil && *c.quotes[i].ConversationID == id {
			c.quotes[i].ConversationID = nil
		}
	}
	return nil
}

// scriptedCompleter answers clean, classify and answer prompts by looking at
// the system message.
type scriptedCompleter struct {
	calls    atomic.Int32
	classify string
	answer   func(messages []ai.ChatMessage) (string, error)
	summary  func(messages []ai.ChatMessage) (string, error)
}

func (s *scriptedCompleter) Complete(ctx context.Context, messages []ai.ChatMessage, opts ai.CompletionOptions) (string, error) {
	s.calls.Add(1)
	system := messages[0].Content
	last := messages[len(messages)-1].Content
	switch {
	case strings.Contains(system, "quote cleaning"):
		return "Cleaned: " + strings.TrimSuffix(strings.TrimPrefix(last, `Clean this quote: "`), `"`), nil
	case strings.Contains(system, `"category"`):
		if s.classify != "" {
			return s.classify, nil
		}
		return `{"category":"Pricing","subcategory":"cost concern","confidence":0.9}`, nil
	case strings.Contains(system, "document analysis"):
		if s.answer != nil {
			return s.answer(messages)
		}
		return `{"answer":"It is in the document.","relevantSections":[{"text":"x","relevanceScore":0.8}]}`, nil
	case strings.Contains(system, "summarize search results"):
		if s.summary != nil {
			return s.summary(messages)
		}
		return "The documents discuss pricing concerns raised by customers.", nil
	}
	return "", fmt.Errorf("unexpected prompt: %s", system)
}

// fakeExtractor returns fixed results per path and can block until released.
type fakeExtractor struct {
	results map[string]extract.Result
	gate    chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, path, mediaType string) extract.Result {
	if f.gate != nil {
		<-f.gate
	}
	if res, ok := f.results[path]; ok {
		return res
	}
	return extract.Result{Text: extract.UnreadableText, Err: errors.New("unknown file")}
}

func answerJSON(answer string) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"answer":           answer,
		"relevantSections": []map[string]interface{}{{"text": answer, "relevanceScore": 1.7}},
	})
	return string(raw)
}
