package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/retail-orders/internal/model"
)

func TestMemoryRepository_InsertAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p, err := repo.InsertProduct(ctx, model.Product{ID: "P1", ProductName: "Mug", Price: decimal.RequireFromString("10.00"), StockAvailable: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ETag)

	got, err := repo.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, p.ETag, got.ETag)
	assert.Equal(t, 5, got.StockAvailable)

	_, err = repo.InsertProduct(ctx, model.Product{ID: "P1", ProductName: "Other"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = repo.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_UpdateProductChecksVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p, err := repo.InsertProduct(ctx, model.Product{ID: "P1", ProductName: "Mug", StockAvailable: 5})
	require.NoError(t, err)

	next := *p
	next.StockAvailable = 3
	updated, err := repo.UpdateProduct(ctx, next, p.ETag)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.StockAvailable)
	assert.NotEqual(t, p.ETag, updated.ETag)

	// повторная запись со старой версией должна быть отклонена
	next.StockAvailable = 1
	_, err = repo.UpdateProduct(ctx, next, p.ETag)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := repo.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockAvailable)

	next.ID = "missing"
	_, err = repo.UpdateProduct(ctx, next, updated.ETag)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_UpdateOrderStatusKeepsOtherFields(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	o, err := repo.InsertOrder(ctx, model.Order{
		ID:          "O1",
		ProductID:   "P1",
		ProductName: "Mug",
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("4.50"),
		TotalPrice:  decimal.RequireFromString("9.00"),
		Status:      model.OrderStatusPending,
	})
	require.NoError(t, err)

	updated, err := repo.UpdateOrderStatus(ctx, "O1", model.OrderStatusProcessing, o.ETag)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)
	assert.Equal(t, 2, updated.Quantity)
	assert.Equal(t, "Mug", updated.ProductName)
	assert.True(t, updated.TotalPrice.Equal(decimal.RequireFromString("9")))

	_, err = repo.UpdateOrderStatus(ctx, "O1", model.OrderStatusCancelled, o.ETag)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = repo.UpdateOrderStatus(ctx, "O2", model.OrderStatusCancelled, o.ETag)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_QueryIsRestartable(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, id := range []string{"C3", "C1", "C2"} {
		_, err := repo.InsertCustomer(ctx, model.Customer{ID: id, Username: "u-" + id})
		require.NoError(t, err)
	}

	collect := func() []string {
		var ids []string
		for c, err := range repo.QueryCustomers(ctx) {
			require.NoError(t, err)
			ids = append(ids, c.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"C1", "C2", "C3"}, collect())
	assert.Equal(t, []string{"C1", "C2", "C3"}, collect())

	var first string
	for c, err := range repo.QueryCustomers(ctx) {
		require.NoError(t, err)
		first = c.ID
		break
	}
	assert.Equal(t, "C1", first)
}

func TestMemoryRepository_OrdersNewestFirstAndDelete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.InsertOrder(ctx, model.Order{ID: "old", OrderDate: base})
	require.NoError(t, err)
	_, err = repo.InsertOrder(ctx, model.Order{ID: "new", OrderDate: base.Add(time.Hour)})
	require.NoError(t, err)

	var ids []string
	for o, err := range repo.QueryOrders(ctx) {
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"new", "old"}, ids)

	require.NoError(t, repo.DeleteOrder(ctx, "old"))
	assert.ErrorIs(t, repo.DeleteOrder(ctx, "old"), ErrNotFound)
	remaining := 0
	for _, err := range repo.QueryOrders(ctx) {
		require.NoError(t, err)
		remaining++
	}
	assert.Equal(t, 1, remaining)
}

func TestMemoryRepository_UpdateCustomerChecksVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	c, err := repo.InsertCustomer(ctx, model.Customer{ID: "C1", Username: "ada", Email: "ada@example.com"})
	require.NoError(t, err)

	next := *c
	next.ShippingAddress = "1 Analytical St"
	updated, err := repo.UpdateCustomer(ctx, next, c.ETag)
	require.NoError(t, err)
	assert.Equal(t, "1 Analytical St", updated.ShippingAddress)
	assert.NotEqual(t, c.ETag, updated.ETag)

	_, err = repo.UpdateCustomer(ctx, next, c.ETag)
	assert.ErrorIs(t, err, ErrVersionConflict)

	next.ID = "missing"
	_, err = repo.UpdateCustomer(ctx, next, updated.ETag)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_DeleteCustomerAndProduct(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.InsertCustomer(ctx, model.Customer{ID: "C1", Username: "ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = repo.InsertProduct(ctx, model.Product{ID: "P1", ProductName: "Mug", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteCustomer(ctx, "C1"))
	require.NoError(t, repo.DeleteProduct(ctx, "P1"))

	_, err = repo.GetCustomer(ctx, "C1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetProduct(ctx, "P1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.DeleteCustomer(ctx, "C1"), ErrNotFound)
	assert.ErrorIs(t, repo.DeleteProduct(ctx, "P1"), ErrNotFound)
}
