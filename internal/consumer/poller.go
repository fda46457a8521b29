package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"go.uber.org/zap"
)

type PollerConfig struct {
	BatchSize int
	Window    time.Duration
	Timeout   time.Duration
	// Backoff is the pause after a receive error.
	Backoff time.Duration
}

// BatchPoller drains a queue in batches and hands each batch to a
// BatchHandler. A batch is acked only when the handler succeeds; otherwise
// every message in it is nacked and the queue decides between redelivery
// and dead-lettering.
type BatchPoller struct {
	queue   broker.Queue
	handler broker.BatchHandler
	cfg     PollerConfig
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewBatchPoller(queue broker.Queue, handler broker.BatchHandler, cfg PollerConfig, logger *zap.Logger) *BatchPoller {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchPoller{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (p *BatchPoller) Start() {
	p.logger.Info("Batch poller started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("window", p.cfg.Window))
	go p.run()
}

func (p *BatchPoller) run() {
	defer close(p.done)

	for {
		_, err := p.PollOnce(p.ctx)
		if p.ctx.Err() != nil {
			p.logger.Info("Batch poller stopped")
			return
		}
		if err != nil && errors.Is(err, broker.ErrQueueClosed) {
			p.logger.Info("Queue closed, batch poller exiting")
			return
		}
		if err != nil && !errors.Is(err, ErrBatchFailed) {
			select {
			case <-p.ctx.Done():
			case <-time.After(p.cfg.Backoff):
			}
		}
	}
}

// ErrBatchFailed wraps handler errors returned by PollOnce.
var ErrBatchFailed = errors.New("batch failed")

// PollOnce receives at most one batch and processes it. It returns the
// number of messages received.
func (p *BatchPoller) PollOnce(ctx context.Context) (int, error) {
	deliveries, err := p.queue.Receive(ctx, p.cfg.BatchSize, p.cfg.Window)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, broker.ErrQueueClosed) {
			p.logger.Error("Failed to receive batch", zap.Error(err))
		}
		return 0, err
	}
	if len(deliveries) == 0 {
		return 0, nil
	}

	msgs := make([]broker.Message, len(deliveries))
	for i, d := range deliveries {
		msgs[i] = d.Message
	}
	metrics.BatchSize.Observe(float64(len(msgs)))

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	herr := p.handler(hctx, msgs)
	cancel()
	metrics.BatchProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))

	// settle with a fresh context so a stop mid-batch still releases it
	settleCtx, settleCancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer settleCancel()

	if herr != nil {
		p.logger.Warn("Batch failed, releasing for redelivery",
			zap.Int("size", len(deliveries)),
			zap.Int("receive_count", deliveries[0].ReceiveCount),
			zap.Error(herr))
		if err := p.queue.Nack(settleCtx, deliveries...); err != nil {
			p.logger.Error("Failed to release batch", zap.Error(err))
		}
		return len(deliveries), errors.Join(ErrBatchFailed, herr)
	}

	if err := p.queue.Ack(settleCtx, deliveries...); err != nil {
		p.logger.Error("Failed to ack batch", zap.Error(err))
		return len(deliveries), err
	}
	return len(deliveries), nil
}

// Stop cancels polling and waits for the current batch. Only valid after Start.
func (p *BatchPoller) Stop() {
	p.logger.Info("Stopping batch poller")
	p.cancel()
	<-p.done
}
