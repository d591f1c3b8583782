package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Заголовки сообщений Kafka.
const (
	HeaderMessageID = "message_id"
	HeaderEventType = "event_type"
)

// Writer описывает используемую часть kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher публикует уведомления в топик Kafka с именем канала.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher создаёт публикатор для указанных брокеров.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaPublisherWithWriter создаёт публикатор поверх готового writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish реализует Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Trace)+2)
	headers = append(headers,
		kafka.Header{Key: HeaderMessageID, Value: []byte(msg.ID)},
		kafka.Header{Key: HeaderEventType, Value: []byte(msg.Type)},
	)
	for k, v := range msg.Trace {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Channel,
		Key:     []byte(msg.Key),
		Value:   msg.Body,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", msg.Channel, err)
	}
	return nil
}

// Close закрывает writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
