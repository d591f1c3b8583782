package repository

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/mmeshcher/retail-orders/internal/model"
)

// table хранит записи одной партиции. Версии сравниваются под мьютексом,
// поэтому условное обновление атомарно.
type table[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
	etag func(*T) *string
}

func newTable[T any](etag func(*T) *string) *table[T] {
	return &table[T]{rows: make(map[string]T), etag: etag}
}

func (t *table[T]) get(id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return v, nil
}

func (t *table[T]) insert(id string, v T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; ok {
		var zero T
		return zero, ErrAlreadyExists
	}
	*t.etag(&v) = NewETag()
	t.rows[id] = v
	return v, nil
}

func (t *table[T]) update(id, expectedETag string, apply func(current T) T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	current, ok := t.rows[id]
	if !ok {
		return zero, ErrNotFound
	}
	if *t.etag(&current) != expectedETag {
		return zero, ErrVersionConflict
	}

	next := apply(current)
	*t.etag(&next) = NewETag()
	t.rows[id] = next
	return next, nil
}

func (t *table[T]) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// scan перебирает снимок партиции, сделанный в начале перебора.
func (t *table[T]) scan(ctx context.Context, less func(a, b T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		t.mu.RLock()
		snapshot := make([]T, 0, len(t.rows))
		for _, v := range t.rows {
			snapshot = append(snapshot, v)
		}
		t.mu.RUnlock()

		sort.SliceStable(snapshot, func(i, j int) bool { return less(snapshot[i], snapshot[j]) })

		for _, v := range snapshot {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// MemoryRepository хранит сущности в памяти процесса. Используется без DATABASE_URI и в тестах.
type MemoryRepository struct {
	customers *table[model.Customer]
	products  *table[model.Product]
	orders    *table[model.Order]
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		customers: newTable(func(c *model.Customer) *string { return &c.ETag }),
		products:  newTable(func(p *model.Product) *string { return &p.ETag }),
		orders:    newTable(func(o *model.Order) *string { return &o.ETag }),
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

func wrapInsert(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// GetCustomer возвращает покупателя по ключу строки.
func (m *MemoryRepository) GetCustomer(_ context.Context, id string) (*model.Customer, error) {
	c, err := m.customers.get(id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCustomer сохраняет нового покупателя.
func (m *MemoryRepository) InsertCustomer(_ context.Context, c model.Customer) (*model.Customer, error) {
	stored, err := m.customers.insert(c.ID, c)
	if err != nil {
		return nil, wrapInsert("insert customer", err)
	}
	return &stored, nil
}

// UpdateCustomer перезаписывает покупателя при совпадении версии.
func (m *MemoryRepository) UpdateCustomer(_ context.Context, c model.Customer, expectedETag string) (*model.Customer, error) {
	stored, err := m.customers.update(c.ID, expectedETag, func(model.Customer) model.Customer { return c })
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// DeleteCustomer удаляет покупателя.
func (m *MemoryRepository) DeleteCustomer(_ context.Context, id string) error {
	return m.customers.delete(id)
}

// QueryCustomers перебирает покупателей в порядке ключей строк.
func (m *MemoryRepository) QueryCustomers(ctx context.Context) iter.Seq2[model.Customer, error] {
	return m.customers.scan(ctx, func(a, b model.Customer) bool { return a.ID < b.ID })
}

// GetProduct возвращает товар по ключу строки.
func (m *MemoryRepository) GetProduct(_ context.Context, id string) (*model.Product, error) {
	p, err := m.products.get(id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertProduct сохраняет новый товар.
func (m *MemoryRepository) InsertProduct(_ context.Context, p model.Product) (*model.Product, error) {
	stored, err := m.products.insert(p.ID, p)
	if err != nil {
		return nil, wrapInsert("insert product", err)
	}
	return &stored, nil
}

// UpdateProduct перезаписывает товар при совпадении версии.
func (m *MemoryRepository) UpdateProduct(_ context.Context, p model.Product, expectedETag string) (*model.Product, error) {
	if p.StockAvailable < 0 {
		return nil, fmt.Errorf("update product: negative stock %d", p.StockAvailable)
	}
	stored, err := m.products.update(p.ID, expectedETag, func(model.Product) model.Product { return p })
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// QueryProducts перебирает товары в порядке ключей строк.
func (m *MemoryRepository) QueryProducts(ctx context.Context) iter.Seq2[model.Product, error] {
	return m.products.scan(ctx, func(a, b model.Product) bool { return a.ID < b.ID })
}

// DeleteProduct удаляет товар.
func (m *MemoryRepository) DeleteProduct(_ context.Context, id string) error {
	return m.products.delete(id)
}

// GetOrder возвращает заказ по ключу строки.
func (m *MemoryRepository) GetOrder(_ context.Context, id string) (*model.Order, error) {
	o, err := m.orders.get(id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertOrder сохраняет новый заказ.
func (m *MemoryRepository) InsertOrder(_ context.Context, o model.Order) (*model.Order, error) {
	stored, err := m.orders.insert(o.ID, o)
	if err != nil {
		return nil, wrapInsert("insert order", err)
	}
	return &stored, nil
}

// UpdateOrderStatus меняет только статус заказа при совпадении версии.
func (m *MemoryRepository) UpdateOrderStatus(_ context.Context, id string, status model.OrderStatus, expectedETag string) (*model.Order, error) {
	stored, err := m.orders.update(id, expectedETag, func(current model.Order) model.Order {
		current.Status = status
		return current
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// QueryOrders перебирает заказы, начиная с самых новых.
func (m *MemoryRepository) QueryOrders(ctx context.Context) iter.Seq2[model.Order, error] {
	return m.orders.scan(ctx, func(a, b model.Order) bool {
		if !a.OrderDate.Equal(b.OrderDate) {
			return a.OrderDate.After(b.OrderDate)
		}
		return a.ID < b.ID
	})
}

// DeleteOrder удаляет заказ.
func (m *MemoryRepository) DeleteOrder(_ context.Context, id string) error {
	return m.orders.delete(id)
}
