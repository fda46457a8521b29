package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("queue closed")

// Queue is the buffered inbox of a subscriber.
type Queue interface {
	Send(ctx context.Context, msg Message) error
	// Receive waits until max messages are available or window elapses,
	// then returns what it has. An empty result is not an error.
	Receive(ctx context.Context, max int, window time.Duration) ([]Delivery, error)
	// Ack removes successfully processed deliveries.
	Ack(ctx context.Context, deliveries ...Delivery) error
	// Nack hands failed deliveries back for redelivery.
	Nack(ctx context.Context, deliveries ...Delivery) error
}

// Delivery is one receive of a queued message.
type Delivery struct {
	Message
	Receipt      string
	ReceiveCount int
}

const (
	_defaultMaxReceive        = 3
	_defaultVisibilityTimeout = 30 * time.Second
	_defaultRetention         = 4 * 24 * time.Hour
)

type QueueOption func(*MemoryQueue)

// WithMaxReceive sets how many failed receives a message gets before it is
// moved to the dead-letter queue. Without a dead-letter queue the ceiling
// has no effect and messages are redelivered indefinitely.
func WithMaxReceive(n int) QueueOption {
	return func(q *MemoryQueue) {
		q.maxReceive = n
	}
}

func WithVisibilityTimeout(d time.Duration) QueueOption {
	return func(q *MemoryQueue) {
		q.visibility = d
	}
}

func WithRetention(d time.Duration) QueueOption {
	return func(q *MemoryQueue) {
		q.retention = d
	}
}

func WithDeadLetterQueue(dlq *MemoryQueue) QueueOption {
	return func(q *MemoryQueue) {
		q.dlq = dlq
	}
}

// WithDeadLetterHook is called, outside the queue lock, for every message
// moved to the dead-letter queue.
func WithDeadLetterHook(fn func(Delivery)) QueueOption {
	return func(q *MemoryQueue) {
		q.onDeadLetter = fn
	}
}

func WithQueueLogger(logger *zap.Logger) QueueOption {
	return func(q *MemoryQueue) {
		q.logger = logger
	}
}

func WithClock(now func() time.Time) QueueOption {
	return func(q *MemoryQueue) {
		q.now = now
	}
}

type queueEntry struct {
	msg          Message
	sentAt       time.Time
	receiveCount int
	receipt      string
	visibleAt    time.Time
}

// MemoryQueue is an in-process queue with visibility timeouts, a
// receive ceiling and an optional dead-letter queue. Ordering is not FIFO
// once a message has been redelivered.
type MemoryQueue struct {
	name         string
	maxReceive   int
	visibility   time.Duration
	retention    time.Duration
	dlq          *MemoryQueue
	onDeadLetter func(Delivery)
	now          func() time.Time
	logger       *zap.Logger

	mu       sync.Mutex
	ready    []*queueEntry
	inflight map[string]*queueEntry
	wake     chan struct{}
	closed   bool
}

func NewMemoryQueue(name string, opts ...QueueOption) *MemoryQueue {
	q := &MemoryQueue{
		name:       name,
		maxReceive: _defaultMaxReceive,
		visibility: _defaultVisibilityTimeout,
		retention:  _defaultRetention,
		now:        time.Now,
		logger:     zap.NewNop(),
		inflight:   make(map[string]*queueEntry),
		wake:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Send(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.ready = append(q.ready, &queueEntry{msg: msg.clone(), sentAt: q.now()})
	q.broadcastLocked()
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, window time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	timer := time.NewTimer(window)
	defer timer.Stop()

	expired := false
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		dead := q.maintainLocked()
		if len(q.ready) >= max || expired {
			out := q.takeLocked(max)
			q.mu.Unlock()
			q.notifyDeadLetters(dead)
			return out, nil
		}
		wake := q.wake
		q.mu.Unlock()
		q.notifyDeadLetters(dead)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			expired = true
		case <-wake:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, deliveries ...Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, d := range deliveries {
		delete(q.inflight, d.Receipt)
	}
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, deliveries ...Delivery) error {
	q.mu.Lock()
	var dead []Delivery
	for _, d := range deliveries {
		e, ok := q.inflight[d.Receipt]
		if !ok {
			// visibility already expired and the message moved on
			continue
		}
		delete(q.inflight, d.Receipt)
		if dl, moved := q.releaseLocked(e); moved {
			dead = append(dead, dl)
		}
	}
	q.broadcastLocked()
	q.mu.Unlock()

	q.notifyDeadLetters(dead)
	return nil
}

// Len is the number of messages waiting to be received.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Peek returns a snapshot of the waiting messages without receiving them.
func (q *MemoryQueue) Peek() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Message, 0, len(q.ready))
	for _, e := range q.ready {
		out = append(out, e.msg.clone())
	}
	return out
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.broadcastLocked()
}

func (q *MemoryQueue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// maintainLocked returns expired in-flight messages to the queue (or the
// dead-letter queue) and drops messages past retention.
func (q *MemoryQueue) maintainLocked() []Delivery {
	now := q.now()
	var dead []Delivery
	for receipt, e := range q.inflight {
		if now.Before(e.visibleAt) {
			continue
		}
		delete(q.inflight, receipt)
		if dl, moved := q.releaseLocked(e); moved {
			dead = append(dead, dl)
		}
	}

	kept := q.ready[:0]
	for _, e := range q.ready {
		if q.retention > 0 && now.Sub(e.sentAt) > q.retention {
			continue
		}
		kept = append(kept, e)
	}
	q.ready = kept
	return dead
}

// releaseLocked moves e to the dead-letter queue once it reached the
// receive ceiling, otherwise back to ready. A message is only dropped here
// after the dead-letter queue accepted it.
func (q *MemoryQueue) releaseLocked(e *queueEntry) (Delivery, bool) {
	if q.dlq != nil && q.maxReceive > 0 && e.receiveCount >= q.maxReceive {
		err := q.dlq.Send(context.Background(), e.msg)
		if err == nil {
			return Delivery{Message: e.msg, Receipt: e.receipt, ReceiveCount: e.receiveCount}, true
		}
		q.logger.Error("Failed to move message to dead-letter queue, keeping it",
			zap.String("queue", q.name),
			zap.String("dead_letter_queue", q.dlq.name),
			zap.String("message_id", e.msg.ID),
			zap.Int("receive_count", e.receiveCount),
			zap.Error(err))
	}
	e.receipt = ""
	q.ready = append(q.ready, e)
	return Delivery{}, false
}

func (q *MemoryQueue) takeLocked(max int) []Delivery {
	n := min(max, len(q.ready))
	out := make([]Delivery, 0, n)
	now := q.now()
	for _, e := range q.ready[:n] {
		e.receiveCount++
		e.receipt = uuid.NewString()
		e.visibleAt = now.Add(q.visibility)
		q.inflight[e.receipt] = e
		out = append(out, Delivery{
			Message:      e.msg.clone(),
			Receipt:      e.receipt,
			ReceiveCount: e.receiveCount,
		})
	}
	q.ready = append(q.ready[:0:0], q.ready[n:]...)
	return out
}

func (q *MemoryQueue) notifyDeadLetters(dead []Delivery) {
	if q.onDeadLetter == nil {
		return
	}
	for _, d := range dead {
		q.onDeadLetter(d)
	}
}
