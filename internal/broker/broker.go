package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	_defaultDirectRetries   = 2
	_defaultDeliveryTimeout = 5 * time.Second
	_defaultRetryDelay      = 100 * time.Millisecond

	// only used to label metrics
	eventTypeAttribute = "eventType"
)

type mode int

const (
	modeDirect mode = iota
	modeQueue
)

type subscription struct {
	name    string
	filter  Filter
	mode    mode
	handler Handler
	queue   Queue
}

type Option func(*Broker)

// WithDirectRetries sets how many times a failed direct delivery is retried.
func WithDirectRetries(n int) Option {
	return func(b *Broker) {
		b.retries = n
	}
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.deliveryTimeout = d
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(b *Broker) {
		b.retryDelay = d
	}
}

// Broker is the in-process fan-out point. Every subscriber whose filter
// accepts a message's attributes gets its own copy. Direct subscribers are
// invoked asynchronously, queue subscribers only get an enqueue.
type Broker struct {
	logger          *zap.Logger
	retries         int
	deliveryTimeout time.Duration
	retryDelay      time.Duration

	mu     sync.RWMutex
	subs   []*subscription
	wg     sync.WaitGroup
	closed bool
}

func New(logger *zap.Logger, opts ...Option) *Broker {
	b := &Broker{
		logger:          logger,
		retries:         _defaultDirectRetries,
		deliveryTimeout: _defaultDeliveryTimeout,
		retryDelay:      _defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) SubscribeDirect(name string, filter Filter, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &subscription{name: name, filter: filter, mode: modeDirect, handler: handler})
}

func (b *Broker) SubscribeQueue(name string, filter Filter, queue Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, &subscription{name: name, filter: filter, mode: modeQueue, queue: queue})
}

// Publish returns once every matching queue holds its copy. Direct handlers
// run in the background; Close waits for them.
func (b *Broker) Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", errors.New("broker closed")
	}

	msg := Message{
		ID:          uuid.NewString(),
		Body:        body,
		Attributes:  attributes,
		PublishedAt: time.Now(),
	}
	metrics.EventsPublished.WithLabelValues(attributes[eventTypeAttribute]).Inc()

	var errs []error
	for _, sub := range b.subs {
		if !sub.filter.Match(msg.Attributes) {
			metrics.EventsFiltered.WithLabelValues(sub.name).Inc()
			continue
		}

		switch sub.mode {
		case modeDirect:
			b.wg.Add(1)
			go b.deliverDirect(sub, msg.clone())
		case modeQueue:
			if err := sub.queue.Send(ctx, msg.clone()); err != nil {
				metrics.EventsDelivered.WithLabelValues(sub.name, "error").Inc()
				errs = append(errs, fmt.Errorf("enqueue to %s: %w", sub.name, err))
				continue
			}
			metrics.EventsDelivered.WithLabelValues(sub.name, "queued").Inc()
		}
	}

	return msg.ID, errors.Join(errs...)
}

func (b *Broker) deliverDirect(sub *subscription, msg Message) {
	defer b.wg.Done()

	var err error
	for attempt := 0; attempt <= b.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(b.retryDelay * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.deliveryTimeout)
		err = sub.handler(ctx, msg)
		cancel()
		if err == nil {
			metrics.EventsDelivered.WithLabelValues(sub.name, "ok").Inc()
			return
		}

		b.logger.Warn("Direct delivery failed",
			zap.String("subscription", sub.name),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	metrics.EventsDelivered.WithLabelValues(sub.name, "error").Inc()
	b.logger.Error("Direct delivery exhausted retries",
		zap.String("subscription", sub.name),
		zap.String("message_id", msg.ID),
		zap.Error(err))
}

// Close stops accepting publishes and waits for in-flight direct deliveries.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Wait blocks until all in-flight direct deliveries have finished.
func (b *Broker) Wait() {
	b.wg.Wait()
}
