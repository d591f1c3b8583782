// Package repository содержит реализации хранилища сущностей: PostgreSQL и in-memory.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound возвращается, если запись с указанным ключом отсутствует.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists возвращается при вставке записи с уже существующим ключом.
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrVersionConflict возвращается, если версия записи изменилась после чтения.
	ErrVersionConflict = errors.New("entity version conflict")
)

// NewETag возвращает новый токен версии записи.
func NewETag() string {
	return ulid.Make().String()
}

// retryDelays строит лестницу задержек между повторами временных ошибок.
func retryDelays(attempts int, base time.Duration) []time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delays := make([]time.Duration, 0, attempts-1)
	d := base
	for i := 1; i < attempts; i++ {
		delays = append(delays, d)
		d *= 2
	}
	return delays
}

// withRetry повторяет чтение после временных ошибок.
func withRetry(ctx context.Context, delays []time.Duration, fn func() error) error {
	return retryWhile(ctx, delays, isTransient, fn)
}

// withWriteRetry повторяет запись только если она гарантированно не была применена:
// повтор применённой условной записи или вставки дал бы ложный конфликт.
func withWriteRetry(ctx context.Context, delays []time.Duration, fn func() error) error {
	return retryWhile(ctx, delays, isSafeWriteRetry, fn)
}

func retryWhile(ctx context.Context, delays []time.Duration, retryable func(error) bool, fn func() error) error {
	var err error
	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !retryable(err) || i == len(delays) {
			return err
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// isTransient сообщает, стоит ли повторять операцию после ошибки.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	// Ошибки контекста не повторяем
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrVersionConflict) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	if pgconn.SafeToRetry(err) {
		return true
	}

	return isConnectionError(err)
}

// isSafeWriteRetry сообщает, что запись не дошла до сервера или была им откатана.
func isSafeWriteRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected
	}

	return pgconn.SafeToRetry(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
