package events

import (
	"encoding/json"
	"fmt"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
)

// AttributeEntity tells consumers which payload family the envelope holds.
// Messages without it are order events.
const AttributeEntity = "entity"

// OrderEvent is the payload of CREATED/DELETED order envelopes.
type OrderEvent struct {
	OrderID      string             `json:"orderId"`
	Email        string             `json:"email"`
	Billing      OrderEventBilling  `json:"billing"`
	Shipping     OrderEventShipping `json:"shipping"`
	ProductCodes []string           `json:"productCodes"`
	RequestID    string             `json:"requestId"`
}

type OrderEventBilling struct {
	Payment    string  `json:"payment"`
	TotalPrice float64 `json:"totalPrice"`
}

type OrderEventShipping struct {
	Type    string `json:"type"`
	Carrier string `json:"carrier"`
}

func NewOrderEvent(order *domain.Order, requestID string) OrderEvent {
	return OrderEvent{
		OrderID: order.ID,
		Email:   order.Email,
		Billing: OrderEventBilling{
			Payment:    string(order.Billing.Payment),
			TotalPrice: order.Billing.TotalPrice,
		},
		Shipping: OrderEventShipping{
			Type:    string(order.Shipping.Type),
			Carrier: string(order.Shipping.Carrier),
		},
		ProductCodes: order.ProductCodes(),
		RequestID:    requestID,
	}
}

// ProductEvent is the payload of product envelopes.
type ProductEvent struct {
	RequestID    string  `json:"requestId"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	Email        string  `json:"email"`
}

// Event is the closed set of lifecycle events. Envelopes are decoded into
// one of these once, at the consumer boundary.
type Event interface {
	Type() EventType
	Entity() domain.Entity
	EntityID() string
	isEvent()
}

type OrderCreated struct{ OrderEvent }
type OrderDeleted struct{ OrderEvent }
type ProductCreated struct{ ProductEvent }
type ProductUpdated struct{ ProductEvent }
type ProductDeleted struct{ ProductEvent }

func (OrderCreated) Type() EventType   { return EventCreated }
func (OrderDeleted) Type() EventType   { return EventDeleted }
func (ProductCreated) Type() EventType { return EventCreated }
func (ProductUpdated) Type() EventType { return EventUpdated }
func (ProductDeleted) Type() EventType { return EventDeleted }

func (OrderCreated) Entity() domain.Entity   { return domain.EntityOrder }
func (OrderDeleted) Entity() domain.Entity   { return domain.EntityOrder }
func (ProductCreated) Entity() domain.Entity { return domain.EntityProduct }
func (ProductUpdated) Entity() domain.Entity { return domain.EntityProduct }
func (ProductDeleted) Entity() domain.Entity { return domain.EntityProduct }

func (e OrderEvent) EntityID() string   { return e.OrderID }
func (e ProductEvent) EntityID() string { return e.ProductCode }

func (OrderCreated) isEvent()   {}
func (OrderDeleted) isEvent()   {}
func (ProductCreated) isEvent() {}
func (ProductUpdated) isEvent() {}
func (ProductDeleted) isEvent() {}

// payload returns the struct that goes into Envelope.Data.
func payload(e Event) any {
	switch ev := e.(type) {
	case OrderCreated:
		return ev.OrderEvent
	case OrderDeleted:
		return ev.OrderEvent
	case ProductCreated:
		return ev.ProductEvent
	case ProductUpdated:
		return ev.ProductEvent
	case ProductDeleted:
		return ev.ProductEvent
	}
	return nil
}

// Marshal builds the envelope bytes for e.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(payload(e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Type(), err)
	}
	return Encode(e.Type(), data)
}

// Parse decodes an envelope of the given entity family into its typed event.
func Parse(entity domain.Entity, body []byte) (Event, error) {
	eventType, data, err := Decode(body)
	if err != nil {
		return nil, err
	}

	switch entity {
	case domain.EntityOrder, "":
		var oe OrderEvent
		if err := json.Unmarshal(data, &oe); err != nil {
			return nil, fmt.Errorf("%w: order payload: %v", ErrMalformedEnvelope, err)
		}
		switch eventType {
		case EventCreated:
			return OrderCreated{oe}, nil
		case EventDeleted:
			return OrderDeleted{oe}, nil
		}
	case domain.EntityProduct:
		var pe ProductEvent
		if err := json.Unmarshal(data, &pe); err != nil {
			return nil, fmt.Errorf("%w: product payload: %v", ErrMalformedEnvelope, err)
		}
		switch eventType {
		case EventCreated:
			return ProductCreated{pe}, nil
		case EventUpdated:
			return ProductUpdated{pe}, nil
		case EventDeleted:
			return ProductDeleted{pe}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownEventType, entity, eventType)
}

// Attributes are the routing attributes published alongside e.
func Attributes(e Event) map[string]string {
	return map[string]string{
		AttributeEventType: string(e.Type()),
		AttributeEntity:    string(e.Entity()),
	}
}
