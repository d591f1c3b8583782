// Package notify доставляет уведомления о заказах и остатках в очереди сообщений.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// ErrQueueFull возвращается, если буфер диспетчера заполнен и уведомление не принято.
var ErrQueueFull = errors.New("notification queue is full")

// ErrDispatcherClosed возвращается после остановки диспетчера: сообщение уже некому доставить.
var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

// Event описывает полезную нагрузку уведомления.
type Event interface {
	EventType() string
	EventKey() string
}

// EventType реализует Event.
func (e OrderCreated) EventType() string { return TypeOrderCreated }

// EventKey реализует Event.
func (e OrderCreated) EventKey() string { return e.OrderID }

// EventType реализует Event.
func (e StockUpdated) EventType() string { return TypeStockUpdated }

// EventKey реализует Event.
func (e StockUpdated) EventKey() string { return e.ProductID }

// EventType реализует Event.
func (e OrderStatusUpdated) EventType() string { return TypeOrderStatusUpdated }

// EventKey реализует Event.
func (e OrderStatusUpdated) EventKey() string { return e.OrderID }

// Message — сериализованное уведомление, готовое к публикации.
type Message struct {
	ID      string
	Channel string
	Key     string
	Type    string
	Body    []byte
	Trace   map[string]string
}

// Publisher публикует сообщение в канал. Реализации не обязаны быть идемпотентными.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Dispatcher принимает уведомления без блокировки и публикует их в фоне
// с ограниченным числом попыток.
type Dispatcher struct {
	publisher      Publisher
	logger         *zap.Logger
	queue          chan Message
	attempts       int
	backoff        time.Duration
	publishTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher создаёт диспетчер с буфером на size сообщений.
func NewDispatcher(publisher Publisher, logger *zap.Logger, size int) *Dispatcher {
	if size < 1 {
		size = 1
	}
	return &Dispatcher{
		publisher:      publisher,
		logger:         logger,
		queue:          make(chan Message, size),
		attempts:       3,
		backoff:        200 * time.Millisecond,
		publishTimeout: 5 * time.Second,
	}
}

// Enqueue ставит уведомление в очередь. Контекст нужен только для передачи трассировки.
func (d *Dispatcher) Enqueue(ctx context.Context, channel string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	msg := Message{
		ID:      ulid.Make().String(),
		Channel: channel,
		Key:     event.EventKey(),
		Type:    event.EventType(),
		Body:    body,
		Trace:   carrier,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run публикует сообщения до отмены контекста, после чего перестаёт принимать
// новые и дочищает буфер.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.mu.Unlock()

			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
		err = d.publisher.Publish(publishCtx, msg)
		cancel()
		if err == nil {
			return
		}

		d.logger.Debug("publish attempt failed",
			zap.String("channel", msg.Channel),
			zap.String("messageID", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < d.attempts {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
	}

	d.logger.Warn("notification dropped",
		zap.String("channel", msg.Channel),
		zap.String("type", msg.Type),
		zap.String("messageID", msg.ID),
		zap.Error(err),
	)
}
