package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/broker"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/metrics"
	"go.uber.org/zap"
)

type AuditStore interface {
	CreateEvent(ctx context.Context, record *domain.AuditRecord) error
}

// AuditConsumer writes one audit record per delivered message. It does not
// deduplicate: a redelivered message produces a second record with its own
// timestamp. Failed writes are left to the transport's redelivery.
type AuditConsumer struct {
	store  AuditStore
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditConsumer(store AuditStore, logger *zap.Logger) *AuditConsumer {
	return &AuditConsumer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (c *AuditConsumer) Handle(ctx context.Context, msg broker.Message) error {
	entity := domain.Entity(msg.Attributes[events.AttributeEntity])
	ev, err := events.Parse(entity, msg.Body)
	if err != nil {
		c.logger.Error("Failed to decode envelope",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return err
	}

	c.logger.Info("Audit event received",
		zap.String("message_id", msg.ID),
		zap.String("event_type", string(ev.Type())),
		zap.String("entity", string(ev.Entity())))

	record := NewAuditRecord(ev, msg.ID, c.now())
	if err := c.store.CreateEvent(ctx, record); err != nil {
		metrics.AuditRecordsWritten.WithLabelValues(string(ev.Entity()), "error").Inc()
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	metrics.AuditRecordsWritten.WithLabelValues(string(ev.Entity()), "ok").Inc()

	return nil
}

// NewAuditRecord derives key, ttl and info for ev as seen at time at.
func NewAuditRecord(ev events.Event, messageID string, at time.Time) *domain.AuditRecord {
	record := domain.NewAuditRecord(ev.Entity(), ev.EntityID(), string(ev.Type()), at)
	record.Info.MessageID = messageID

	switch e := ev.(type) {
	case events.OrderCreated:
		fillOrder(record, e.OrderEvent)
	case events.OrderDeleted:
		fillOrder(record, e.OrderEvent)
	case events.ProductCreated:
		fillProduct(record, e.ProductEvent)
	case events.ProductUpdated:
		fillProduct(record, e.ProductEvent)
	case events.ProductDeleted:
		fillProduct(record, e.ProductEvent)
	}
	return record
}

func fillOrder(r *domain.AuditRecord, e events.OrderEvent) {
	r.Email = e.Email
	r.RequestID = e.RequestID
	r.Info.OrderID = e.OrderID
	r.Info.ProductCodes = append([]string(nil), e.ProductCodes...)
}

func fillProduct(r *domain.AuditRecord, e events.ProductEvent) {
	r.Email = e.Email
	r.RequestID = e.RequestID
	r.Info.ProductID = e.ProductID
	r.Info.Price = e.ProductPrice
}
