package events

import (
	"encoding/json"
	"testing"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		payload   []byte
	}{
		{"created json", EventCreated, []byte(`{"orderId":"o-1","email":"alice@example.com"}`)},
		{"deleted json", EventDeleted, []byte(`{"orderId":"o-2"}`)},
		{"updated plain text", EventUpdated, []byte("not json at all")},
		{"empty payload", EventCreated, []byte{}},
		{"quotes and escapes", EventDeleted, []byte("a \"quoted\" \\ value\n\ttab")},
		{"unicode", EventCreated, []byte("주문 생성 ✓")},
		{"custom type", EventType("ARCHIVED"), []byte("{}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Encode(tt.eventType, tt.payload)
			require.NoError(t, err)

			gotType, gotPayload, err := Decode(body)
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, gotType)
			assert.Equal(t, string(tt.payload), string(gotPayload))
		})
	}
}

func TestEncode_WireShape(t *testing.T) {
	body, err := Encode(EventCreated, []byte(`{"orderId":"o-1"}`))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Len(t, raw, 2)
	assert.Equal(t, "CREATED", raw["eventType"])
	assert.Equal(t, `{"orderId":"o-1"}`, raw["data"], "data travels as a JSON string")
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode("", []byte("{}"))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = Encode(EventCreated, []byte{0xff, 0xfe})
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"data":"x"}`, `[1,2]`} {
		_, _, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, "body %q", body)
	}
}

func TestParse_OrderEvents(t *testing.T) {
	order := &domain.Order{
		Email:    "alice@example.com",
		ID:       "o-1",
		Products: []domain.OrderProduct{{Code: "P1", Price: 10}, {Code: "P2", Price: 25.5}},
		Billing:  domain.Billing{Payment: domain.PaymentCreditCard, TotalPrice: 35.5},
		Shipping: domain.Shipping{Type: domain.ShippingUrgent, Carrier: domain.CarrierFedex},
	}
	oe := NewOrderEvent(order, "req-1")

	for _, ev := range []Event{OrderCreated{oe}, OrderDeleted{oe}} {
		body, err := Marshal(ev)
		require.NoError(t, err)

		got, err := Parse(domain.EntityOrder, body)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
		assert.Equal(t, "o-1", got.EntityID())
		assert.Equal(t, domain.EntityOrder, got.Entity())
	}

	assert.Equal(t, []string{"P1", "P2"}, oe.ProductCodes)
	assert.Equal(t, "CREDIT_CARD", oe.Billing.Payment)
	assert.Equal(t, 35.5, oe.Billing.TotalPrice)
}

func TestParse_MissingEntityDefaultsToOrder(t *testing.T) {
	body, err := Marshal(OrderCreated{OrderEvent{OrderID: "o-9"}})
	require.NoError(t, err)

	got, err := Parse("", body)
	require.NoError(t, err)
	assert.IsType(t, OrderCreated{}, got)
}

func TestParse_ProductEvents(t *testing.T) {
	pe := ProductEvent{RequestID: "r", ProductID: "id-1", ProductCode: "COD1", ProductPrice: 9.9, Email: "admin@example.com"}

	for _, ev := range []Event{ProductCreated{pe}, ProductUpdated{pe}, ProductDeleted{pe}} {
		body, err := Marshal(ev)
		require.NoError(t, err)

		got, err := Parse(domain.EntityProduct, body)
		require.NoError(t, err)
		assert.Equal(t, ev, got)
		assert.Equal(t, "COD1", got.EntityID())
	}
}

func TestParse_UnknownCombination(t *testing.T) {
	body, err := Encode(EventUpdated, []byte(`{"orderId":"o-1"}`))
	require.NoError(t, err)

	_, err = Parse(domain.EntityOrder, body)
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Parse(domain.Entity("invoice"), body)
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestParse_BadPayload(t *testing.T) {
	body, err := Encode(EventCreated, []byte("not json"))
	require.NoError(t, err)

	_, err = Parse(domain.EntityOrder, body)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestAttributes(t *testing.T) {
	attrs := Attributes(ProductUpdated{})
	assert.Equal(t, map[string]string{"eventType": "UPDATED", "entity": "product"}, attrs)
}
