package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return models.NewStageError(models.ErrEmbedding, "embed", errors.New("boom"))
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPolicy_Do_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	want := errors.New("still down")
	err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		calls++
		return want
	}, nil)
	require.ErrorIs(t, err, want)
	assert.Equal(t, 2, calls)
}

func TestPolicy_Do_SingleAttemptByDefault(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("fail")
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	se := &models.StageError{Kind: models.ErrEmbedding, Op: "embed", StatusCode: http.StatusBadRequest, Err: errors.New("bad input")}
	err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return se
	}, nil)
	require.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(5).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("request: %w", context.Canceled)
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), true},
		{"canceled", context.Canceled, false},
		{"config", fmt.Errorf("x: %w", models.ErrConfiguration), false},
		{"429", &models.StageError{Kind: models.ErrSearch, StatusCode: 429}, true},
		{"503", &models.StageError{Kind: models.ErrSearch, StatusCode: 503}, true},
		{"401", &models.StageError{Kind: models.ErrSearch, StatusCode: 401}, false},
		{"download 404", &models.DownloadError{URL: "u", StatusCode: 404}, false},
		{"download transport", &models.DownloadError{URL: "u", Err: errors.New("dial")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transient(tt.err))
		})
	}
}

func TestPacer_ErrorDelay(t *testing.T) {
	p := NewPacer(0, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	p.Done(errors.New("failed"))
	start = time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	start = time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "error delay applies once")
}

func TestPacer_RegularDelay(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPacer_CanceledContext(t *testing.T) {
	p := NewPacer(0, time.Hour)
	p.Done(errors.New("failed"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
