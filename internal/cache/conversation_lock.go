package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("conversation lock timeout")

// releaseScript deletes the lock only when it is still held by the caller's token.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ConversationLock serializes message-log appends per conversation across processes.
type ConversationLock struct {
	client    *redisv9.Client
	ttl       time.Duration
	waitLimit time.Duration
	backoff   time.Duration
}

func NewConversationLock(client *redisv9.Client, ttl time.Duration) *ConversationLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConversationLock{
		client:    client,
		ttl:       ttl,
		waitLimit: ttl,
		backoff:   50 * time.Millisecond,
	}
}

// Lock blocks until the lock is acquired or the wait limit passes.
// The returned function releases the lock.
func (l *ConversationLock) Lock(ctx context.Context, conversationID string) (func(), error) {
	key := lockKey(conversationID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.waitLimit)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire lock failed: %w", err)
		}
		if ok {
			return func() {
				_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func lockKey(conversationID string) string {
	return fmt.Sprintf("conversation:lock:%s", conversationID)
}
