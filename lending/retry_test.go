package lending_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"Gin_postgres_redis_library/lending"
)

func Test_RetryWithExponentialBackoff_RetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := lending.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	}, lending.WithBaseDelay(time.Millisecond), lending.WithJitterFactor(0))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func Test_RetryWithExponentialBackoff_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := lending.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	}, lending.WithMaxAttempts(2), lending.WithBaseDelay(0))

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.Equal(t, 2, calls)
}

func Test_RetryWithExponentialBackoff_FailsFastOnPermanentError(t *testing.T) {
	calls := 0
	err := lending.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return lending.ErrBookUnavailable
	})

	assert.ErrorIs(t, err, lending.ErrBookUnavailable)
	assert.Equal(t, 1, calls)
}

func Test_RetryWithExponentialBackoff_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := lending.RetryWithExponentialBackoff(ctx, func(context.Context) error {
		calls++
		cancel()
		return lending.ErrConflict
	}, lending.WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func Test_RetryOptions_Validation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, lending.RetryWithExponentialBackoff(context.Background(), noop, lending.WithMaxAttempts(0)), lending.ErrInvalidMaxAttempts)
	assert.ErrorIs(t, lending.RetryWithExponentialBackoff(context.Background(), noop, lending.WithBaseDelay(-time.Second)), lending.ErrNegativeBaseDelay)
	assert.ErrorIs(t, lending.RetryWithExponentialBackoff(context.Background(), noop, lending.WithJitterFactor(1.5)), lending.ErrInvalidJitterFactor)
}

func Test_IsRetryable(t *testing.T) {
	assert.True(t, lending.IsRetryable(lending.ErrConflict))
	assert.True(t, lending.IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, lending.IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, lending.IsRetryable(context.DeadlineExceeded))
}
