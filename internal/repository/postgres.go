package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/retail-orders/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	customerColumns = `row_key, name, surname, username, email, shipping_address, etag`
	productColumns  = `row_key, product_name, description, price::text, stock_available, image_url, etag`
	orderColumns    = `row_key, customer_id, username, product_id, product_name, quantity,
		unit_price::text, total_price::text, order_date, status, etag`
)

// PostgresRepository предоставляет доступ к хранилищу сущностей в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
// attempts задаёт число попыток для операций, завершившихся временной ошибкой.
func NewPostgresRepository(dsn string, attempts int) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: retryDelays(attempts, 200*time.Millisecond),
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) retry(ctx context.Context, fn func() error) error {
	return withRetry(ctx, r.delays, fn)
}

func (r *PostgresRepository) retryWrite(ctx context.Context, fn func() error) error {
	return withWriteRetry(ctx, r.delays, fn)
}

func insertError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conditionalMiss определяет причину, по которой условное обновление не затронуло строк.
func (r *PostgresRepository) conditionalMiss(ctx context.Context, table, partition, id string) error {
	var exists bool
	err := r.retry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE partition_key = $1 AND row_key = $2)`,
			partition, id,
		).Scan(&exists)
	})
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Surname, &c.Username, &c.Email, &c.ShippingAddress, &c.ETag)
	return c, err
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p     model.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.ProductName, &p.Description, &price, &p.StockAvailable, &p.ImageURL, &p.ETag); err != nil {
		return model.Product{}, err
	}

	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o          model.Order
		unitPrice  string
		totalPrice string
		status     string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.Username, &o.ProductID, &o.ProductName, &o.Quantity,
		&unitPrice, &totalPrice, &o.OrderDate, &status, &o.ETag)
	if err != nil {
		return model.Order{}, err
	}

	if o.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return model.Order{}, fmt.Errorf("parse unit price %q: %w", unitPrice, err)
	}
	if o.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return model.Order{}, fmt.Errorf("parse total price %q: %w", totalPrice, err)
	}
	o.OrderDate = o.OrderDate.UTC()
	o.Status = model.OrderStatus(status)
	return o, nil
}

// scanAll лениво перебирает строки запроса. Каждый новый перебор выполняет запрос заново.
func scanAll[T any](r *PostgresRepository, ctx context.Context, op string, scan func(pgx.Row) (T, error), sql string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		var rows pgx.Rows
		err := r.retry(ctx, func() error {
			var qErr error
			rows, qErr = r.pool.Query(ctx, sql, args...)
			return qErr
		})
		if err != nil {
			yield(zero, fmt.Errorf("%s: %w", op, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("%s: scan: %w", op, err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("%s: rows error: %w", op, err))
		}
	}
}

// GetCustomer возвращает покупателя по ключу строки.
func (r *PostgresRepository) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := r.retry(ctx, func() error {
		var scanErr error
		c, scanErr = scanCustomer(r.pool.QueryRow(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE partition_key = $1 AND row_key = $2`,
			model.PartitionCustomer, id,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// InsertCustomer сохраняет нового покупателя.
func (r *PostgresRepository) InsertCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	c.ETag = NewETag()
	err := r.retryWrite(ctx, func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO customers (partition_key, row_key, name, surname, username, email, shipping_address, etag)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			model.PartitionCustomer, c.ID, c.Name, c.Surname, c.Username, c.Email, c.ShippingAddress, c.ETag,
		)
		return execErr
	})
	if err != nil {
		return nil, insertError("insert customer", err)
	}
	return &c, nil
}

// UpdateCustomer перезаписывает покупателя, если его текущая версия совпадает с expectedETag.
func (r *PostgresRepository) UpdateCustomer(ctx context.Context, c model.Customer, expectedETag string) (*model.Customer, error) {
	var updated model.Customer
	err := r.retryWrite(ctx, func() error {
		var scanErr error
		updated, scanErr = scanCustomer(r.pool.QueryRow(ctx,
			`UPDATE customers
			 SET name = $3, surname = $4, username = $5, email = $6, shipping_address = $7, etag = $8
			 WHERE partition_key = $1 AND row_key = $2 AND etag = $9
			 RETURNING `+customerColumns,
			model.PartitionCustomer, c.ID, c.Name, c.Surname, c.Username, c.Email, c.ShippingAddress,
			NewETag(), expectedETag,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conditionalMiss(ctx, "customers", model.PartitionCustomer, c.ID)
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return &updated, nil
}

// QueryCustomers перебирает партицию покупателей в порядке ключей строк.
func (r *PostgresRepository) QueryCustomers(ctx context.Context) iter.Seq2[model.Customer, error] {
	return scanAll(r, ctx, "select customers", scanCustomer,
		`SELECT `+customerColumns+` FROM customers WHERE partition_key = $1 ORDER BY row_key`,
		model.PartitionCustomer,
	)
}

// GetProduct возвращает товар по ключу строки.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := r.retry(ctx, func() error {
		var scanErr error
		p, scanErr = scanProduct(r.pool.QueryRow(ctx,
			`SELECT `+productColumns+` FROM products WHERE partition_key = $1 AND row_key = $2`,
			model.PartitionProduct, id,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// InsertProduct сохраняет новый товар.
func (r *PostgresRepository) InsertProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.ETag = NewETag()
	err := r.retryWrite(ctx, func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO products (partition_key, row_key, product_name, description, price, stock_available, image_url, etag)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
			model.PartitionProduct, p.ID, p.ProductName, p.Description, p.Price.String(), p.StockAvailable, p.ImageURL, p.ETag,
		)
		return execErr
	})
	if err != nil {
		return nil, insertError("insert product", err)
	}
	return &p, nil
}

// UpdateProduct перезаписывает товар, если его текущая версия совпадает с expectedETag.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product, expectedETag string) (*model.Product, error) {
	var updated model.Product
	err := r.retryWrite(ctx, func() error {
		var scanErr error
		updated, scanErr = scanProduct(r.pool.QueryRow(ctx,
			`UPDATE products
			 SET product_name = $3, description = $4, price = $5::numeric, stock_available = $6, image_url = $7, etag = $8
			 WHERE partition_key = $1 AND row_key = $2 AND etag = $9
			 RETURNING `+productColumns,
			model.PartitionProduct, p.ID, p.ProductName, p.Description, p.Price.String(), p.StockAvailable, p.ImageURL,
			NewETag(), expectedETag,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conditionalMiss(ctx, "products", model.PartitionProduct, p.ID)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &updated, nil
}

// QueryProducts перебирает партицию товаров в порядке ключей строк.
func (r *PostgresRepository) QueryProducts(ctx context.Context) iter.Seq2[model.Product, error] {
	return scanAll(r, ctx, "select products", scanProduct,
		`SELECT `+productColumns+` FROM products WHERE partition_key = $1 ORDER BY row_key`,
		model.PartitionProduct,
	)
}

// GetOrder возвращает заказ по ключу строки.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := r.retry(ctx, func() error {
		var scanErr error
		o, scanErr = scanOrder(r.pool.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE partition_key = $1 AND row_key = $2`,
			model.PartitionOrder, id,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// InsertOrder сохраняет новый заказ.
func (r *PostgresRepository) InsertOrder(ctx context.Context, o model.Order) (*model.Order, error) {
	o.ETag = NewETag()
	err := r.retryWrite(ctx, func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO orders (partition_key, row_key, customer_id, username, product_id, product_name, quantity,
			                     unit_price, total_price, order_date, status, etag)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12)`,
			model.PartitionOrder, o.ID, o.CustomerID, o.Username, o.ProductID, o.ProductName, o.Quantity,
			o.UnitPrice.String(), o.TotalPrice.String(), o.OrderDate, string(o.Status), o.ETag,
		)
		return execErr
	})
	if err != nil {
		return nil, insertError("insert order", err)
	}
	return &o, nil
}

// UpdateOrderStatus меняет только статус заказа, если его версия совпадает с expectedETag.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, expectedETag string) (*model.Order, error) {
	var updated model.Order
	err := r.retryWrite(ctx, func() error {
		var scanErr error
		updated, scanErr = scanOrder(r.pool.QueryRow(ctx,
			`UPDATE orders SET status = $3, etag = $4
			 WHERE partition_key = $1 AND row_key = $2 AND etag = $5
			 RETURNING `+orderColumns,
			model.PartitionOrder, id, string(status), NewETag(), expectedETag,
		))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conditionalMiss(ctx, "orders", model.PartitionOrder, id)
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return &updated, nil
}

// QueryOrders перебирает партицию заказов, начиная с самых новых.
func (r *PostgresRepository) QueryOrders(ctx context.Context) iter.Seq2[model.Order, error] {
	return scanAll(r, ctx, "select orders", scanOrder,
		`SELECT `+orderColumns+` FROM orders WHERE partition_key = $1 ORDER BY order_date DESC, row_key`,
		model.PartitionOrder,
	)
}

// DeleteOrder удаляет заказ. Остаток товара не меняется.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id string) error {
	return r.deleteRow(ctx, "delete order", "orders", model.PartitionOrder, id)
}

// DeleteProduct удаляет товар. Снимки в существующих заказах не меняются.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id string) error {
	return r.deleteRow(ctx, "delete product", "products", model.PartitionProduct, id)
}

// DeleteCustomer удаляет покупателя.
func (r *PostgresRepository) DeleteCustomer(ctx context.Context, id string) error {
	return r.deleteRow(ctx, "delete customer", "customers", model.PartitionCustomer, id)
}

func (r *PostgresRepository) deleteRow(ctx context.Context, op, table, partition, id string) error {
	var cmdTag pgconn.CommandTag
	err := r.retryWrite(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`DELETE FROM `+table+` WHERE partition_key = $1 AND row_key = $2`,
			partition, id,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
