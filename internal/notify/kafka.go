package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPasswordReset is the event-type header on reset messages.
const EventPasswordReset = "password_reset_requested"

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes reset messages to a topic consumed by the mail relay.
type KafkaNotifier struct {
	writer  MessageWriter
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaNotifier returns a notifier writing to topic on brokers. Call Close on shutdown.
func NewKafkaNotifier(brokers []string, topic string, log *zap.Logger) (*KafkaNotifier, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka notifier: brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaNotifier(writer, log), nil
}

func newKafkaNotifier(w MessageWriter, log *zap.Logger) *KafkaNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaNotifier{writer: w, timeout: 5 * time.Second, log: log}
}

// SendPasswordReset writes msg keyed by account id so one account's requests stay ordered.
func (n *KafkaNotifier) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err = n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(msg.AccountID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventPasswordReset)},
		},
	})
	if err != nil {
		n.log.Warn("kafka reset delivery failed", zap.String("account_id", msg.AccountID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
