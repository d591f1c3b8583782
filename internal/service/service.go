// Package service реализует бизнес-логику обработки заказов.
package service

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mmeshcher/retail-orders/internal/model"
	"github.com/mmeshcher/retail-orders/internal/notify"
)

// Repository описывает контракт хранилища сущностей, используемый сервисом.
type Repository interface {
	Close() error

	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	InsertCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer, expectedETag string) (*model.Customer, error)
	QueryCustomers(ctx context.Context) iter.Seq2[model.Customer, error]
	DeleteCustomer(ctx context.Context, id string) error

	GetProduct(ctx context.Context, id string) (*model.Product, error)
	InsertProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product, expectedETag string) (*model.Product, error)
	QueryProducts(ctx context.Context) iter.Seq2[model.Product, error]
	DeleteProduct(ctx context.Context, id string) error

	GetOrder(ctx context.Context, id string) (*model.Order, error)
	InsertOrder(ctx context.Context, o model.Order) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus, expectedETag string) (*model.Order, error)
	QueryOrders(ctx context.Context) iter.Seq2[model.Order, error]
	DeleteOrder(ctx context.Context, id string) error
}

// Notifier принимает уведомления без ожидания доставки.
type Notifier interface {
	Enqueue(ctx context.Context, channel string, event notify.Event) error
}

// BlobStore сохраняет загруженные файлы и возвращает их адрес.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Options задаёт настраиваемые параметры сервиса.
type Options struct {
	OrderChannel  string
	StockChannel  string
	InitialStatus model.OrderStatus
}

// Service содержит бизнес-логику обработки заказов.
type Service struct {
	repo     Repository
	notifier Notifier
	blobs    BlobStore
	logger   *zap.Logger
	tracer   trace.Tracer
	opts     Options

	now   func() time.Time
	newID func() string
}

// NewService создаёт новый сервис. notifier и blobs могут быть nil.
func NewService(repo Repository, notifier Notifier, blobs BlobStore, logger *zap.Logger, opts Options) *Service {
	if opts.OrderChannel == "" {
		opts.OrderChannel = "order-notifications"
	}
	if opts.StockChannel == "" {
		opts.StockChannel = "stock-updates"
	}
	if opts.InitialStatus == "" {
		opts.InitialStatus = model.OrderStatusPending
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:     repo,
		notifier: notifier,
		blobs:    blobs,
		logger:   logger,
		tracer:   otel.Tracer("github.com/mmeshcher/retail-orders/internal/service"),
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// publish ставит уведомление в очередь. Ошибки только логируются.
func (s *Service) publish(ctx context.Context, channel string, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, channel, event); err != nil {
		s.logger.Warn("notification not queued",
			zap.String("channel", channel),
			zap.String("type", event.EventType()),
			zap.String("key", event.EventKey()),
			zap.Error(err),
		)
	}
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var res []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, nil
}
