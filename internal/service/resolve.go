package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/repository"
)

// ResolveProduct находит товар по ключу, а если его нет, то по названию.
// При нескольких совпадениях берётся первое в порядке перебора хранилища.
func (s *Service) ResolveProduct(ctx context.Context, identifier string) (*model.Product, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty product identifier", ErrBadIdentifier)
	}

	p, err := s.repo.GetProduct(ctx, identifier)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get product: %w", err)
	}

	p, err = firstMatch(s.repo.QueryProducts(ctx), func(p model.Product) bool {
		return p.ID == identifier || p.ProductName == identifier
	})
	if err != nil {
		return nil, fmt.Errorf("product %q: %w", identifier, err)
	}
	return p, nil
}

// ResolveCustomer находит покупателя по ключу, а если его нет, то по логину или email.
// При нескольких совпадениях берётся первое в порядке перебора хранилища.
func (s *Service) ResolveCustomer(ctx context.Context, identifier string) (*model.Customer, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty customer identifier", ErrBadIdentifier)
	}

	c, err := s.repo.GetCustomer(ctx, identifier)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	c, err = firstMatch(s.repo.QueryCustomers(ctx), func(c model.Customer) bool {
		return c.ID == identifier || c.Username == identifier || c.Email == identifier
	})
	if err != nil {
		return nil, fmt.Errorf("customer %q: %w", identifier, err)
	}
	return c, nil
}

func firstMatch[T any](seq iter.Seq2[T, error], match func(T) bool) (*T, error) {
	for item, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if match(item) {
			return &item, nil
		}
	}
	return nil, ErrBadIdentifier
}
