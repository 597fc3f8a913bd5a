package retry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out calls to remote services: a regular delay between items and a longer one after a failure.
type Pacer struct {
	limiter    *rate.Limiter
	errorDelay time.Duration

	mu     sync.Mutex
	failed bool
}

// NewPacer returns a pacer that allows one call per delay. A non-positive delay disables the regular spacing.
func NewPacer(delay, errorDelay time.Duration) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter:    rate.NewLimiter(limit, 1),
		errorDelay: errorDelay,
	}
}

// Wait blocks until the next call may start. After a reported failure it first waits the error delay.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	failed := p.failed
	p.failed = false
	p.mu.Unlock()

	if failed && p.errorDelay > 0 {
		t := time.NewTimer(p.errorDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.limiter.Wait(ctx)
}

// Done records the outcome of the last call.
func (p *Pacer) Done(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.failed = true
	p.mu.Unlock()
}
