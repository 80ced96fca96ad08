package service

import (
	"context"
	"errors"
	"time"

	"reward_engine/internal/domain"
	"reward_engine/internal/metrics"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 20 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
)

// retryOnConflict runs fn up to maxAttempts times, backing off between
// attempts. Only ErrTransactionConflict is retried.
func retryOnConflict(ctx context.Context, op string, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTransactionConflict) {
			return backoff.Permanent(err)
		}
		if attempt < maxAttempts {
			metrics.TxConflictRetries.WithLabelValues(op).Inc()
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx))
}
