package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

type ConsumerConfig struct {
	Name       string
	Filter     broker.Filter
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Backoff is the pause after a failed fetch.
	Backoff time.Duration
	// DefaultAttributes fill in routing attributes the producer left out,
	// e.g. the entity of a topic that only carries one entity family.
	DefaultAttributes map[string]string
}

// KafkaConsumer is one filtered subscription on the event topic. Messages
// the filter rejects are committed without reaching the handler. A handler
// failure is retried MaxRetries times, then logged and committed.
type KafkaConsumer struct {
	reader  MessageReader
	cfg     ConsumerConfig
	handler broker.Handler
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewKafkaConsumer(reader MessageReader, cfg ConsumerConfig, handler broker.Handler, logger *zap.Logger) *KafkaConsumer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaConsumer{
		reader:  reader,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("subscription", cfg.Name)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (kc *KafkaConsumer) Start() {
	kc.logger.Info("Kafka consumer started")
	go kc.consume()
}

func (kc *KafkaConsumer) consume() {
	defer close(kc.done)
	defer kc.reader.Close()

	for {
		msg, err := kc.reader.FetchMessage(kc.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || kc.ctx.Err() != nil {
				kc.logger.Info("Kafka consumer stopped")
				return
			}
			kc.logger.Error("Error reading message", zap.Error(err))
			select {
			case <-kc.ctx.Done():
			case <-time.After(kc.cfg.Backoff):
			}
			continue
		}

		kc.processMessage(msg)

		if err := kc.reader.CommitMessages(kc.ctx, msg); err != nil {
			kc.logger.Error("Error committing message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (kc *KafkaConsumer) processMessage(km kafka.Message) {
	msg := ToBrokerMessage(km)
	for k, v := range kc.cfg.DefaultAttributes {
		if _, ok := msg.Attributes[k]; !ok {
			msg.Attributes[k] = v
		}
	}
	if !kc.cfg.Filter.Match(msg.Attributes) {
		metrics.EventsFiltered.WithLabelValues(kc.cfg.Name).Inc()
		return
	}

	var err error
	for attempt := 0; attempt <= kc.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-kc.ctx.Done():
				return
			case <-time.After(kc.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		ctx, cancel := context.WithTimeout(kc.ctx, kc.cfg.Timeout)
		err = kc.handler(ctx, msg)
		cancel()
		if err == nil {
			metrics.EventsDelivered.WithLabelValues(kc.cfg.Name, "ok").Inc()
			return
		}

		kc.logger.Warn("Error processing message",
			zap.String("message_id", msg.ID),
			zap.Int("partition", km.Partition),
			zap.Int64("offset", km.Offset),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	metrics.EventsDelivered.WithLabelValues(kc.cfg.Name, "error").Inc()
	kc.logger.Error("Giving up on message",
		zap.String("message_id", msg.ID),
		zap.Int64("offset", km.Offset),
		zap.Error(err))
}

// Stop cancels the consume loop and waits for it to exit.
func (kc *KafkaConsumer) Stop() {
	kc.logger.Info("Stopping Kafka consumer")
	kc.cancel()
	<-kc.done
}

// ToBrokerMessage turns Kafka headers back into routing attributes.
func ToBrokerMessage(km kafka.Message) broker.Message {
	attrs := make(map[string]string, len(km.Headers))
	id := ""
	for _, h := range km.Headers {
		if h.Key == HeaderMessageID {
			id = string(h.Value)
			continue
		}
		attrs[h.Key] = string(h.Value)
	}
	if id == "" {
		id = fmt.Sprintf("%s-%d-%d", km.Topic, km.Partition, km.Offset)
	}
	return broker.Message{
		ID:          id,
		Body:        km.Value,
		Attributes:  attrs,
		PublishedAt: km.Time,
	}
}
