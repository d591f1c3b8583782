package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest возвращается при некорректных входных данных. Побочных эффектов нет.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBadIdentifier возвращается, если идентификатор не удалось сопоставить ни с одной записью.
	ErrBadIdentifier = errors.New("bad identifier")
	// ErrInsufficientStock возвращается, если на складе недостаточно товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict возвращается, если запись изменилась конкурентно. Вызывающий может перечитать и повторить.
	ErrConflict = errors.New("concurrent modification")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrOrderNotPersisted возвращается, если товар уже списан, а заказ сохранить не удалось.
	// Остаток требует сверки.
	ErrOrderNotPersisted = errors.New("order not persisted after stock reservation")
)

// InsufficientStockError сообщает доступный остаток, чтобы клиент мог уменьшить количество.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Available: %d", e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
