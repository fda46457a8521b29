package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pollerConfig() PollerConfig {
	return PollerConfig{BatchSize: 5, Window: 20 * time.Millisecond, Timeout: time.Second, Backoff: time.Millisecond}
}

func TestBatchPoller_AcksSuccessfulBatch(t *testing.T) {
	q := broker.NewMemoryQueue("emails")
	require.NoError(t, q.Send(context.Background(), createdFor(t, "1", "a@x.com")))
	require.NoError(t, q.Send(context.Background(), createdFor(t, "2", "b@x.com")))

	sender := &fakeSender{}
	p := NewBatchPoller(q, NewNotificationConsumer(sender, zap.NewNop()).HandleBatch, pollerConfig(), zap.NewNop())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, q.Len())
	assert.Zero(t, q.InFlight())
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, sender.recipients())
}

func TestBatchPoller_EmptyQueue(t *testing.T) {
	q := broker.NewMemoryQueue("emails")
	called := false
	p := NewBatchPoller(q, func(context.Context, []broker.Message) error {
		called = true
		return nil
	}, pollerConfig(), zap.NewNop())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)
}

func TestBatchPoller_FailedBatchIsDeadLetteredAfterThreeAttempts(t *testing.T) {
	dlq := broker.NewMemoryQueue("emails-dlq", broker.WithMaxReceive(0))
	q := broker.NewMemoryQueue("emails", broker.WithMaxReceive(3), broker.WithDeadLetterQueue(dlq))
	require.NoError(t, q.Send(context.Background(), createdFor(t, "1", "a@x.com")))
	require.NoError(t, q.Send(context.Background(), createdFor(t, "2", "b@x.com")))

	// one bad recipient poisons the whole batch
	sender := &fakeSender{failTo: map[string]bool{"b@x.com": true}}
	p := NewBatchPoller(q, NewNotificationConsumer(sender, zap.NewNop()).HandleBatch, pollerConfig(), zap.NewNop())

	for attempt := 1; attempt <= 3; attempt++ {
		n, err := p.PollOnce(context.Background())
		assert.Equal(t, 2, n, "attempt %d", attempt)
		assert.ErrorIs(t, err, ErrBatchFailed)
	}

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "dead-lettered messages are not received again")

	assert.Zero(t, q.Len())
	assert.Len(t, dlq.Peek(), 2)
}

func TestBatchPoller_RecoversOnRetry(t *testing.T) {
	q := broker.NewMemoryQueue("emails")
	require.NoError(t, q.Send(context.Background(), createdFor(t, "1", "a@x.com")))

	attempts := 0
	p := NewBatchPoller(q, func(context.Context, []broker.Message) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	}, pollerConfig(), zap.NewNop())

	_, err := p.PollOnce(context.Background())
	require.ErrorIs(t, err, ErrBatchFailed)
	_, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, q.Len())
	assert.Zero(t, q.InFlight())
}

func TestBatchPoller_StartStop(t *testing.T) {
	q := broker.NewMemoryQueue("emails")

	var mu sync.Mutex
	var got []string
	p := NewBatchPoller(q, func(_ context.Context, msgs []broker.Message) error {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			got = append(got, m.ID)
		}
		return nil
	}, pollerConfig(), zap.NewNop())

	p.Start()
	require.NoError(t, q.Send(context.Background(), broker.Message{ID: "m-1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestBatchPoller_ExitsWhenQueueCloses(t *testing.T) {
	q := broker.NewMemoryQueue("emails")
	p := NewBatchPoller(q, func(context.Context, []broker.Message) error { return nil }, pollerConfig(), zap.NewNop())

	p.Start()
	q.Close()

	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("poller kept running on a closed queue")
	}
}
