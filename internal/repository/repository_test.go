package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/retail-orders/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "version conflict", err: ErrVersionConflict, want: false},
		{name: "not found", err: fmt.Errorf("get: %w", ErrNotFound), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestWithRetry_StopsAfterBoundedAttempts(t *testing.T) {
	calls := 0
	transient := &pgconn.PgError{Code: pgerrcode.SerializationFailure}

	err := withRetry(context.Background(), retryDelays(3, time.Millisecond), func() error {
		calls++
		return transient
	})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), retryDelays(3, time.Millisecond), func() error {
		calls++
		return ErrVersionConflict
	})

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_SucceedsAfterTransientError(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), retryDelays(3, time.Millisecond), func() error {
		calls++
		if calls == 1 {
			return errors.New("read: connection reset by peer")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsSafeWriteRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, want: false},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: false},
		{name: "context deadline", err: context.DeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSafeWriteRetry(tt.err))
		})
	}
}

func TestWithWriteRetry_DoesNotReplayAmbiguousError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p, err := repo.InsertProduct(ctx, model.Product{ID: "P1", ProductName: "Mug", StockAvailable: 5})
	require.NoError(t, err)

	next := *p
	next.StockAvailable = 4
	reset := errors.New("read: connection reset by peer")
	writes := 0

	// запись применена, но ответ потерян: повтор со старой версией дал бы конфликт
	err = withWriteRetry(ctx, retryDelays(3, time.Millisecond), func() error {
		if _, err := repo.UpdateProduct(ctx, next, p.ETag); err != nil {
			return err
		}
		writes++
		return reset
	})

	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 1, writes)

	got, err := repo.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.StockAvailable)
}

func TestWithWriteRetry_RetriesRejectedStatement(t *testing.T) {
	calls := 0

	err := withWriteRetry(context.Background(), retryDelays(3, time.Millisecond), func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryDelays(t *testing.T) {
	assert.Empty(t, retryDelays(1, time.Second))
	assert.Empty(t, retryDelays(0, time.Second))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, retryDelays(3, 100*time.Millisecond))
}
