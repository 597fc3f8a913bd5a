// Package retry provides the retry policy shared by remote clients and the pacer used between ingestion calls.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperjump/tanya/internal/models"
	"go.uber.org/zap"
)

// Policy is an exponential backoff with a cap on total attempts. MaxAttempts <= 1 disables retries.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Logger          *zap.Logger
}

// Once is a policy that makes exactly one attempt.
var Once = Policy{MaxAttempts: 1}

// Do runs op until it succeeds, retryable reports false, attempts are exhausted, or ctx is done.
// A nil retryable uses Transient. The last error from op is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) error {
	if retryable == nil {
		retryable = Transient
	}
	if p.MaxAttempts <= 1 {
		return op(ctx)
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
	})
	return err
}

// Transient reports whether err is worth retrying: rate limiting, server errors, or transport failures.
// Context cancellation, invalid input and configuration errors are never retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrConfiguration) {
		return false
	}
	var se *models.StageError
	if errors.As(err, &se) {
		return retryableStatus(se.StatusCode)
	}
	var de *models.DownloadError
	if errors.As(err, &de) {
		return retryableStatus(de.StatusCode)
	}
	return true
}

// retryableStatus treats 0 (no response) as a transport failure.
func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
