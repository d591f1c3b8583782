package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher пишет уведомления в лог. Используется, когда брокер не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт публикатор, пишущий в указанный логгер.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish реализует Publisher.
func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("notification",
		zap.String("channel", msg.Channel),
		zap.String("type", msg.Type),
		zap.String("messageID", msg.ID),
		zap.ByteString("payload", msg.Body),
	)
	return nil
}

// Close реализует Publisher.
func (p *LogPublisher) Close() error { return nil }
