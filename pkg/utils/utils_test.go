package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
}

func TestRetryWithResult(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryPermanent(t *testing.T) {
	notFound := errors.New("not found")
	cfg := fastRetry()
	cfg.Permanent = []error{notFound}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return notFound
	})
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 1}

	err := Retry(ctx, cfg, func() error {
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}

func TestRateLimiter(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRateLimiter(2, 2)
	r.now = func() time.Time { return clock }
	r.lastUpdate = clock

	assert.Zero(t, r.reserve())
	assert.Zero(t, r.reserve())
	assert.InDelta(t, float64(500*time.Millisecond), float64(r.reserve()), float64(time.Millisecond))

	clock = clock.Add(500 * time.Millisecond)
	assert.Zero(t, r.reserve())
	assert.InDelta(t, float64(500*time.Millisecond), float64(r.reserve()), float64(time.Millisecond))
}

func TestRateLimiterDisabled(t *testing.T) {
	var r *RateLimiter = NewRateLimiter(0, 1)
	assert.Nil(t, r)
	assert.NoError(t, r.Wait(context.Background()))
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	r := NewRateLimiter(0.001, 1)
	require.Zero(t, r.reserve())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestParseTimestamp(t *testing.T) {
	testCases := []struct {
		in   string
		date string
	}{
		{"2012-02-16 07:42:00", "2012-02-16"},
		{"2012-02-16T23:30:00-05:00", "2012-02-16"},
		{"2012-02-16", "2012-02-16"},
		{" 20120216 ", "2012-02-16"},
		{"02/16/2012", "2012-02-16"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDate(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.date, FormatDate(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestAddDays(t *testing.T) {
	d := time.Date(2012, 2, 28, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2012-03-01", FormatDate(AddDays(d, 2)))
	assert.Equal(t, "2012-02-26", FormatDate(AddDays(d, -2)))
}
