package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotelens/internal/model"
	"quotelens/internal/repository"
)

type memHistory struct {
	mu      sync.Mutex
	entries map[string][]model.Message
	reads   int
}

func (h *memHistory) GetHistory(ctx context.Context, id string) ([]model.Message, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	messages, ok := h.entries[id]
	return messages, ok, nil
}

func (h *memHistory) SetHistory(ctx context.Context, id string, messages []model.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[id] = append([]model.Message(nil), messages...)
	return nil
}

func (h *memHistory) DeleteHistory(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, id)
	return nil
}

type countingLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	err      error
}

func (l *countingLocker) Lock(ctx context.Context, id string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[id] {
		return nil, errors.New("already held")
	}
	l.held[id] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, nil
}

func TestConversationCreateDefaultsTitle(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store.conversationStore(), store, nil, nil, 3)

	conversation, err := svc.Create(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultConversationTitle, conversation.Title)
	assert.NotEmpty(t, conversation.ID)

	named, err := svc.Create(context.Background(), "Pricing calls")
	require.NoError(t, err)
	assert.Equal(t, "Pricing calls", named.Title)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestConversationGetMissing(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store.conversationStore(), store, nil, nil, 3)

	_, err := svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = svc.ListQuotes(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendTurnRetriesVersionConflicts(t *testing.T) {
	store := newMemStore()
	conversations := store.conversationStore()
	locker := &countingLocker{held: map[string]bool{}}
	svc := NewConversationService(conversations, store, nil, locker, 3)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, "")
	require.NoError(t, err)

	store.conflicts = 2
	updated, err := svc.AppendTurn(ctx, conversation.ID, "q", "a")
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.Equal(t, 1, locker.acquired)
	assert.Empty(t, locker.held)

	stored, err := svc.Get(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, 3, stored.Version)
}

func TestAppendTurnGivesUpAfterConflicts(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store.conversationStore(), store, nil, nil, 1)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, "")
	require.NoError(t, err)

	store.conflicts = 5
	_, err = svc.AppendTurn(ctx, conversation.ID, "q", "a")
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestAppendTurnLockFailure(t *testing.T) {
	store := newMemStore()
	locker := &countingLocker{err: errors.New("lock timeout")}
	svc := NewConversationService(store.conversationStore(), store, nil, locker, 3)

	conversation, err := svc.Create(context.Background(), "")
	require.NoError(t, err)

	_, err = svc.AppendTurn(context.Background(), conversation.ID, "q", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
}

func TestConcurrentAppendsKeepEveryTurn(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store.conversationStore(), store, nil, nil, 50)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AppendTurn(ctx, conversation.ID, "q", "a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := svc.Get(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 16)
}

func TestHistoryUsesCache(t *testing.T) {
	store := newMemStore()
	cache := &memHistory{entries: map[string][]model.Message{}}
	svc := NewConversationService(store.conversationStore(), store, cache, nil, 3)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = svc.AppendTurn(ctx, conversation.ID, "q", "a")
	require.NoError(t, err)

	require.Len(t, cache.entries[conversation.ID], 2)

	history, err := svc.History(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 1, cache.reads)

	require.NoError(t, svc.Delete(ctx, conversation.ID))
	assert.NotContains(t, cache.entries, conversation.ID)

	_, err = svc.History(ctx, conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDeleteConversationKeepsQuotes(t *testing.T) {
	store := newMemStore()
	svc := NewConversationService(store.conversationStore(), store, nil, nil, 3)
	ctx := context.Background()

	conversation, err := svc.Create(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.CreateBatch(ctx, []model.Quote{
		{ConversationID: &conversation.ID, OriginalText: "kept", Position: 0},
	}))

	require.NoError(t, svc.Delete(ctx, conversation.ID))
	quotes := store.allQuotes()
	require.Len(t, quotes, 1)
	assert.Nil(t, quotes[0].ConversationID)
}
