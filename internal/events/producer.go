package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HeaderMessageID carries the id assigned at publish time.
const HeaderMessageID = "messageId"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is the Transport used outside LOCAL_MODE. Routing
// attributes travel as Kafka headers so consumers filter before decoding.
type KafkaProducer struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaProducer(writer MessageWriter, logger *zap.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: writer,
		logger: logger,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	messageID := uuid.NewString()

	headers := make([]kafka.Header, 0, len(attributes)+1)
	headers = append(headers, kafka.Header{Key: HeaderMessageID, Value: []byte(messageID)})
	for k, v := range attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(messageID),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to write message",
			zap.String("message_id", messageID),
			zap.Error(err))
		return "", fmt.Errorf("failed to write message: %w", err)
	}

	return messageID, nil
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
