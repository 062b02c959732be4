package fetch

import (
	"context"
	"log/slog"
	"time"
)

// RetryingFetcher retries transient fetch failures with capped exponential
// backoff before giving up.
type RetryingFetcher struct {
	inner      Fetcher
	maxRetries int
	backoff    time.Duration
	backoffMax time.Duration
}

// NewRetryingFetcher wraps inner. maxRetries is the number of re-attempts
// after the first failure, zero disables retrying.
func NewRetryingFetcher(inner Fetcher, maxRetries int, backoff, backoffMax time.Duration) *RetryingFetcher {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &RetryingFetcher{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
		backoffMax: backoffMax,
	}
}

// Fetch attempts the inner fetch up to maxRetries+1 times. Context
// cancellation cuts the backoff wait short and is never retried.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying fetch",
				slog.String("url", url),
				slog.Int("attempt", attempt),
			)
		}
		page, err := f.inner.Fetch(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < f.maxRetries {
			timer := time.NewTimer(f.delay(attempt + 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func (f *RetryingFetcher) delay(attempt int) time.Duration {
	d := f.backoff * time.Duration(1<<(attempt-1))
	if f.backoffMax > 0 && d > f.backoffMax {
		d = f.backoffMax
	}
	return d
}
