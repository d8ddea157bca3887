package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gapper-terminal/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBackoffSchedule(t *testing.T) {
	b := DefaultBackoff()
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Delay(i+1), "attempt %d", i+1)
	}
	assert.False(t, b.Exhausted(6))
	assert.True(t, b.Exhausted(7))
}

func TestBackoffIsMonotonic(t *testing.T) {
	b := Backoff{Initial: 3 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 1.7}
	prev := time.Duration(0)
	for a := 1; a < 30; a++ {
		d := b.Delay(a)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, b.Max)
		prev = d
	}
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("fetch NVDA: %w", NewNetworkError("card request failed", cause))

	assert.True(t, IsNetworkError(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	se := NewServerError(503, "unavailable", "try later")
	assert.Equal(t, 503, ServerStatus(fmt.Errorf("x: %w", se)))
	assert.Contains(t, se.Error(), "503")
	assert.Contains(t, se.Error(), "unavailable")

	st := NewStreamError(models.ReasonTooManyStreams, "stream rejected", nil)
	assert.False(t, st.Transient())
	assert.True(t, NewStreamError(models.ReasonNone, "eof", nil).Transient())
}

func TestRetryWithBackoff(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2, MaxAttempts: 3}

	calls := 0
	err := RetryWithBackoff(context.Background(), "ping", b, nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(context.Background(), "ping", b, nil, func() error {
		calls++
		return errors.New("never")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestErrorHandlerCounts(t *testing.T) {
	h := NewErrorHandler(nil)
	h.Handle(nil, "noop")
	h.Handle(NewNetworkError("dial", errors.New("refused")), "card fetch")
	h.Handle(NewServerError(404, "not_found", "gone"), "card fetch")
	assert.Equal(t, int64(2), h.ErrorCount())
}
