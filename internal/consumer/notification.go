package consumer

import (
	"context"
	"fmt"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const OrderEmailSubject = "We got your order"

// NotificationConsumer sends one email per CREATED order in a batch. All
// sends run concurrently; the batch fails if any of them fails.
type NotificationConsumer struct {
	sender notify.Sender
	logger *zap.Logger
}

func NewNotificationConsumer(sender notify.Sender, logger *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		sender: sender,
		logger: logger,
	}
}

func (c *NotificationConsumer) HandleBatch(ctx context.Context, msgs []broker.Message) error {
	type pending struct {
		messageID string
		event     events.OrderEvent
	}

	// decode everything before sending anything
	batch := make([]pending, 0, len(msgs))
	for _, msg := range msgs {
		ev, err := events.Parse(domain.Entity(msg.Attributes[events.AttributeEntity]), msg.Body)
		if err != nil {
			return fmt.Errorf("message %s: %w", msg.ID, err)
		}

		created, ok := ev.(events.OrderCreated)
		if !ok {
			c.logger.Warn("Skipping non order created event",
				zap.String("message_id", msg.ID),
				zap.String("event_type", string(ev.Type())),
				zap.String("entity", string(ev.Entity())))
			continue
		}
		batch = append(batch, pending{messageID: msg.ID, event: created.OrderEvent})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range batch {
		g.Go(func() error {
			return c.send(gctx, p.messageID, p.event)
		})
	}
	return g.Wait()
}

func (c *NotificationConsumer) send(ctx context.Context, messageID string, e events.OrderEvent) error {
	deliveryID, err := c.sender.Send(ctx, OrderEmail(e))
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		c.logger.Error("Failed to send order email",
			zap.String("message_id", messageID),
			zap.String("order_id", e.OrderID),
			zap.Error(err))
		return fmt.Errorf("send email for order %s: %w", e.OrderID, err)
	}

	metrics.NotificationsSent.WithLabelValues("ok").Inc()
	c.logger.Info("Order email sent",
		zap.String("message_id", messageID),
		zap.String("order_id", e.OrderID),
		zap.String("delivery_id", deliveryID))
	return nil
}

func OrderEmail(e events.OrderEvent) notify.Notification {
	return notify.Notification{
		To:      e.Email,
		Subject: OrderEmailSubject,
		Body:    fmt.Sprintf("We got your order %s and the price %v", e.OrderID, e.Billing.TotalPrice),
	}
}
