package notify

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &stubWriter{}
	p := NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), Message{
		ID:      "01J0000000000000000000000",
		Channel: "stock-updates",
		Key:     "P1",
		Type:    TypeStockUpdated,
		Body:    []byte(`{"productId":"P1"}`),
		Trace:   map[string]string{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "stock-updates", msg.Topic)
	assert.Equal(t, "P1", string(msg.Key))
	assert.JSONEq(t, `{"productId":"P1"}`, string(msg.Value))
	assert.Equal(t, "01J0000000000000000000000", headerValue(msg.Headers, HeaderMessageID))
	assert.Equal(t, TypeStockUpdated, headerValue(msg.Headers, HeaderEventType))
	assert.NotEmpty(t, headerValue(msg.Headers, "traceparent"))
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	w := &stubWriter{err: kafka.LeaderNotAvailable}
	p := NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), Message{Channel: "order-notifications"})
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
	assert.Contains(t, err.Error(), "order-notifications")
}
