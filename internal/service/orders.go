package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/notify"
	"github.com/mmeshcher/retail-orders/internal/repository"
	"github.com/mmeshcher/retail-orders/internal/validation"
)

const (
	stockUpdatedBy  = "Order System"
	statusUpdatedBy = "System"
)

// CreateOrder проверяет запрос, списывает остаток, сохраняет заказ и ставит уведомления в очередь.
// Заказ не создаётся без подтверждённого списания остатка.
func (s *Service) CreateOrder(ctx context.Context, customerIdentifier, productIdentifier string, quantity int) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	if !validation.IsValidQuantity(quantity) {
		return nil, invalidf("quantity must be at least 1, got %d", quantity)
	}

	customer, err := s.ResolveCustomer(ctx, customerIdentifier)
	if err != nil {
		if errors.Is(err, ErrBadIdentifier) {
			return nil, invalidf("invalid customer %q", customerIdentifier)
		}
		return nil, err
	}

	product, err := s.ResolveProduct(ctx, productIdentifier)
	if err != nil {
		if errors.Is(err, ErrBadIdentifier) {
			return nil, invalidf("invalid product %q", productIdentifier)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("customer.id", customer.ID),
		attribute.String("product.id", product.ID),
		attribute.Int("order.quantity", quantity),
	)

	reserved, err := s.ReserveStock(ctx, *product, quantity)
	if err != nil {
		return nil, err
	}

	order := model.Order{
		ID:          s.newID(),
		CustomerID:  customer.ID,
		Username:    customer.Username,
		ProductID:   product.ID,
		ProductName: product.ProductName,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		TotalPrice:  product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		OrderDate:   s.now().UTC(),
		Status:      s.opts.InitialStatus,
	}

	stored, err := s.repo.InsertOrder(ctx, order)
	if err != nil {
		// Остаток уже списан: отдельное сообщение для сверки.
		s.logger.Error("order persist failed after stock reservation",
			zap.Bool("reconcile", true),
			zap.String("orderID", order.ID),
			zap.String("productID", product.ID),
			zap.Int("quantity", quantity),
			zap.Int("stockAfter", reserved.StockAvailable),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not persisted")
		return nil, fmt.Errorf("%w: %w", ErrOrderNotPersisted, err)
	}

	s.publish(ctx, s.opts.OrderChannel, notify.OrderCreated{
		Type:         notify.TypeOrderCreated,
		OrderID:      stored.ID,
		CustomerID:   customer.ID,
		CustomerName: customer.FullName(),
		ProductID:    product.ID,
		ProductName:  stored.ProductName,
		Quantity:     stored.Quantity,
		UnitPrice:    stored.UnitPrice,
		TotalPrice:   stored.TotalPrice,
		OrderDateUTC: stored.OrderDate,
		Status:       string(stored.Status),
	})
	s.publish(ctx, s.opts.StockChannel, notify.StockUpdated{
		Type:           notify.TypeStockUpdated,
		ProductID:      product.ID,
		ProductName:    product.ProductName,
		PreviousStock:  product.StockAvailable,
		NewStock:       reserved.StockAvailable,
		UpdatedBy:      stockUpdatedBy,
		UpdatedDateUTC: s.now().UTC(),
	})

	return stored, nil
}

// UpdateOrderStatus меняет статус заказа условной записью по текущей версии.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, newStatus string) (*model.Order, error) {
	return s.UpdateOrderStatusIfMatch(ctx, orderID, newStatus, "")
}

// UpdateOrderStatusIfMatch меняет статус заказа, если его версия равна expectedETag.
// Пустой expectedETag означает версию, прочитанную перед записью. Автоматических повторов нет.
func (s *Service) UpdateOrderStatusIfMatch(ctx context.Context, orderID, newStatus, expectedETag string) (*model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateOrderStatus")
	defer span.End()

	status, ok := validation.NormalizeStatus(newStatus)
	if !ok {
		return nil, invalidf("status is required (max %d characters)", validation.MaxStatusLength)
	}

	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	etag := current.ETag
	if expectedETag != "" {
		if expectedETag != current.ETag {
			return nil, fmt.Errorf("%w: order %s version mismatch", ErrConflict, orderID)
		}
		etag = expectedETag
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, current.ID, model.OrderStatus(status), etag)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, fmt.Errorf("%w: order %s changed since it was read", ErrConflict, orderID)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	s.publish(ctx, s.opts.OrderChannel, notify.OrderStatusUpdated{
		Type:           notify.TypeOrderStatusUpdated,
		OrderID:        updated.ID,
		CustomerID:     updated.CustomerID,
		CustomerName:   updated.Username,
		ProductName:    updated.ProductName,
		PreviousStatus: string(current.Status),
		NewStatus:      string(updated.Status),
		UpdatedBy:      statusUpdatedBy,
		UpdatedDateUTC: s.now().UTC(),
	})

	return updated, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает все заказы, начиная с самых новых.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	orders, err := collect(s.repo.QueryOrders(ctx))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// DeleteOrder удаляет заказ. Остаток товара не возвращается.
func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	if err := s.repo.DeleteOrder(ctx, orderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
