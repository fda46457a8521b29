package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func localConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		LocalMode:        true,
		EmailBatchSize:   5,
		EmailBatchWindow: 20 * time.Millisecond,
		EmailMaxReceive:  3,
		QueueVisibility:  time.Second,
		QueueRetention:   time.Hour,
		DeadLetterRetain: time.Hour,
		DirectMaxRetries: 2,
		APITimeout:       2 * time.Second,
		ConsumerTimeout:  time.Second,
		ShutdownTimeout:  time.Second,
	}
}

func TestLocalPipeline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), localConfig(), zap.NewNop())
	require.NoError(t, err)
	router := a.Router()

	body, err := json.Marshal(map[string]any{
		"email":      "alice@x.com",
		"productIds": []string{"P1", "P2"},
		"payment":    "CREDIT_CARD",
		"shipping":   map[string]string{"type": "URGENT", "carrier": "FEDEX"},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var order domain.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.InDelta(t, 35.50, order.Billing.TotalPrice, 1e-9)

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?id="+order.ID, nil))
		var records []domain.AuditRecord
		if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
			return false
		}
		return len(records) == 1 && records[0].EventType == "CREATED"
	}, 2*time.Second, 10*time.Millisecond)

	n, err := a.poller.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the CREATED event reached the email queue")

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func auditRecords(t *testing.T, router http.Handler, query string) func() []domain.AuditRecord {
	return func() []domain.AuditRecord {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?"+query, nil))
		var records []domain.AuditRecord
		if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
			t.Logf("decode audit response: %v", err)
			return nil
		}
		return records
	}
}

func TestLocalPipeline_ProductEventsAudited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), localConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a.broker)

	publisher := events.NewEventPublisher(a.broker, zap.NewNop())
	_, err = publisher.Publish(context.Background(), events.ProductUpdated{ProductEvent: events.ProductEvent{
		RequestID:    "req-1",
		ProductID:    "p-1",
		ProductCode:  "P1",
		ProductPrice: 12.5,
	}})
	require.NoError(t, err)

	records := auditRecords(t, a.Router(), "entity=product&id=P1")
	assert.Eventually(t, func() bool {
		got := records()
		return len(got) == 1 && got[0].EventType == "UPDATED"
	}, 2*time.Second, 10*time.Millisecond)

	n, err := a.poller.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "product events never reach the email queue")
}

func TestLocalPipeline_MissingEntityAttributeIsOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := New(context.Background(), localConfig(), zap.NewNop())
	require.NoError(t, err)

	body, err := events.Marshal(events.OrderCreated{OrderEvent: events.OrderEvent{
		OrderID: "o-legacy",
		Email:   "bob@x.com",
	}})
	require.NoError(t, err)
	_, err = a.broker.Publish(context.Background(), body, map[string]string{
		events.AttributeEventType: string(events.EventCreated),
	})
	require.NoError(t, err)

	records := auditRecords(t, a.Router(), "id=o-legacy")
	assert.Eventually(t, func() bool {
		got := records()
		return len(got) == 1 && got[0].EventType == "CREATED"
	}, 2*time.Second, 10*time.Millisecond)

	n, err := a.poller.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the email subscription also takes the envelope")
}
