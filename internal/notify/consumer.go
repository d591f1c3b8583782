package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reader описывает используемую часть kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer обрабатывает уведомления одного канала. Доставка «как минимум один раз»,
// поэтому повторы отсекаются по идентификатору сообщения.
type Consumer struct {
	channel string
	reader  Reader
	dedupe  Deduper
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewConsumer создаёт обработчик канала в составе группы потребителей.
func NewConsumer(brokers []string, channel, group string, dedupe Deduper, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   channel,
		GroupID: group,
	})
	return NewConsumerWithReader(channel, r, dedupe, logger)
}

// NewConsumerWithReader создаёт обработчик поверх готового reader.
func NewConsumerWithReader(channel string, r Reader, dedupe Deduper, logger *zap.Logger) *Consumer {
	return &Consumer{
		channel: channel,
		reader:  r,
		dedupe:  dedupe,
		logger:  logger.With(zap.String("channel", channel)),
		tracer:  otel.Tracer("github.com/mmeshcher/retail-orders/internal/notify"),
	}
}

// Run читает сообщения до отмены контекста.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.channel, err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("commit message failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	id := headerValue(msg.Headers, HeaderMessageID)
	if id == "" {
		id = fmt.Sprintf("%d:%d", msg.Partition, msg.Offset)
	}

	seen, err := c.dedupe.Seen(ctx, c.channel+":"+id)
	if err != nil {
		// без отметки обрабатываем сообщение повторно
		c.logger.Warn("dedupe check failed", zap.String("messageID", id), zap.Error(err))
	}
	if seen {
		c.logger.Info("duplicate notification skipped", zap.String("messageID", id))
		return
	}

	carrier := propagation.MapCarrier{}
	for _, h := range msg.Headers {
		carrier[h.Key] = string(h.Value)
	}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	_, span := c.tracer.Start(msgCtx, "process "+c.channel)
	defer span.End()

	c.logger.Info("notification received",
		zap.String("messageID", id),
		zap.String("type", headerValue(msg.Headers, HeaderEventType)),
		zap.ByteString("payload", msg.Value),
	)
}
