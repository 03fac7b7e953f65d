package app

import (
	"context"
	"errors"
	"time"
)

// RetryOnNotFound calls fn and, while it reports ErrNoDocumentContent, calls it
// again up to retries more times with a fixed delay. Other errors return at once.
func RetryOnNotFound[T any](ctx context.Context, retries int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil || !errors.Is(err, ErrNoDocumentContent) || attempt >= retries {
			return result, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
}
