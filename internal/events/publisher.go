package events

import (
	"context"

	"go.uber.org/zap"
)

// Transport moves an encoded envelope plus its routing attributes to the
// subscribers. It returns the message id it assigned.
type Transport interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string) (string, error)
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) (string, error)
}

type EventPublisher struct {
	transport Transport
	logger    *zap.Logger
}

func NewEventPublisher(transport Transport, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		transport: transport,
		logger:    logger,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, e Event) (string, error) {
	body, err := Marshal(e)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("event_type", string(e.Type())), zap.Error(err))
		return "", err
	}

	messageID, err := p.transport.Publish(ctx, body, Attributes(e))
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_type", string(e.Type())),
			zap.String("entity_id", e.EntityID()),
			zap.Error(err))
		return "", err
	}

	p.logger.Info("Event published successfully",
		zap.String("message_id", messageID),
		zap.String("event_type", string(e.Type())),
		zap.String("entity", string(e.Entity())),
		zap.String("entity_id", e.EntityID()))

	return messageID, nil
}
