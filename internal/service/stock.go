package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/repository"
	"github.com/mmeshcher/retail-orders/internal/validation"
)

// ReserveStock списывает quantity единиц товара условной записью по версии product.
// Конфликт версий не повторяется: решение принимает вызывающий.
func (s *Service) ReserveStock(ctx context.Context, product model.Product, quantity int) (*model.Product, error) {
	if !validation.IsValidQuantity(quantity) {
		return nil, invalidf("quantity must be at least 1, got %d", quantity)
	}

	if product.StockAvailable < quantity {
		return nil, &InsufficientStockError{Available: product.StockAvailable}
	}

	next := product
	next.StockAvailable = max(product.StockAvailable-quantity, 0)

	updated, err := s.repo.UpdateProduct(ctx, next, product.ETag)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %s changed since it was read", ErrConflict, product.ID)
		}
		return nil, fmt.Errorf("update product stock: %w", err)
	}
	return updated, nil
}
