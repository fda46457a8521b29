package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/repository/memory"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/service"
	"github.com/cloud-wave-best-zizon/order-events-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPublisher struct {
	events []events.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e events.Event) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, e)
	return "msg-1", nil
}

type fixture struct {
	router *gin.Engine
	orders *memory.OrderStore
	audit  *memory.AuditStore
	pub    *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		orders: memory.NewOrderStore(),
		audit:  memory.NewAuditStore(),
		pub:    &stubPublisher{},
	}
	catalog := memory.NewCatalog(
		domain.Product{ID: "P1", Code: "P1", Price: 10.00},
		domain.Product{ID: "P2", Code: "P2", Price: 25.50},
	)
	svc := service.NewOrderService(f.orders, catalog, f.pub, zap.NewNop())

	f.router = gin.New()
	f.router.Use(middleware.RequestID())
	v1 := f.router.Group("/api/v1")
	NewOrderHandler(svc, zap.NewNop()).Register(v1)
	NewAuditHandler(f.audit, zap.NewNop()).Register(v1)
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func validOrder(ids ...string) map[string]any {
	return map[string]any{
		"email":      "alice@x.com",
		"productIds": ids,
		"payment":    "CREDIT_CARD",
		"shipping":   map[string]string{"type": "URGENT", "carrier": "FEDEX"},
	}
}

func TestCreateOrder_Created(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/orders", validOrder("P1", "P2"))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp domain.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice@x.com", resp.Email)
	assert.NotEmpty(t, resp.ID)
	assert.InDelta(t, 35.50, resp.Billing.TotalPrice, 1e-9)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	require.Len(t, f.pub.events, 1)
	created := f.pub.events[0].(events.OrderCreated)
	assert.Equal(t, w.Header().Get(middleware.HeaderRequestID), created.RequestID)
}

func TestCreateOrder_PropagatesCallerRequestID(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(validOrder("P1")))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderRequestID, "caller-42")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "caller-42", w.Header().Get(middleware.HeaderRequestID))
	assert.Equal(t, "caller-42", f.pub.events[0].(events.OrderCreated).RequestID)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/orders", validOrder("P1", "P404"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"some product was not found"}`, w.Body.String())
	assert.Empty(t, f.pub.events)

	all, err := f.orders.GetAllOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"bad email", map[string]any{"email": "nope", "productIds": []string{"P1"}, "payment": "CASH"}},
		{"no products", map[string]any{"email": "a@x.com", "productIds": []string{}, "payment": "CASH"}},
		{"bad payment", map[string]any{"email": "a@x.com", "productIds": []string{"P1"}, "payment": "BITCOIN"}},
		{"not an object", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Invalid request format"}`, w.Body.String())
		})
	}
}

func TestCreateOrder_PublishFailureStillCreated(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker unavailable")

	w := f.do(http.MethodPost, "/api/v1/orders", validOrder("P1"))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestGetOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orders.CreateOrder(ctx, &domain.Order{Email: "alice@x.com", ID: "o-1"}))
	require.NoError(t, f.orders.CreateOrder(ctx, &domain.Order{Email: "alice@x.com", ID: "o-2"}))
	require.NoError(t, f.orders.CreateOrder(ctx, &domain.Order{Email: "bob@x.com", ID: "o-3"}))

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"all", "", http.StatusOK, 3},
		{"by email", "?email=alice@x.com", http.StatusOK, 2},
		{"single", "?email=alice@x.com&orderId=o-2", http.StatusOK, 1},
		{"unknown email", "?email=carol@x.com", http.StatusOK, 0},
		{"order id without email", "?orderId=o-1", http.StatusOK, 0},
		{"empty email", "?email=", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodGet, "/api/v1/orders"+tt.query, nil)
			require.Equal(t, tt.code, w.Code)

			var resp []domain.OrderResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp, tt.count)
		})
	}

	w := f.do(http.MethodGet, "/api/v1/orders?email=alice@x.com&orderId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.CreateOrder(context.Background(), &domain.Order{Email: "alice@x.com", ID: "o-1"}))

	w := f.do(http.MethodDelete, "/api/v1/orders?email=alice@x.com&orderId=o-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.pub.events, 1)
	assert.IsType(t, events.OrderDeleted{}, f.pub.events[0])

	w = f.do(http.MethodDelete, "/api/v1/orders?email=alice@x.com&orderId=o-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, f.pub.events, 1, "a missing order publishes nothing")

	w = f.do(http.MethodDelete, "/api/v1/orders?email=alice@x.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEvents(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	for i, eventType := range []string{"CREATED", "DELETED"} {
		r := domain.NewAuditRecord(domain.EntityOrder, "o-1", eventType, now.Add(time.Duration(i)*time.Millisecond))
		r.Email = "alice@x.com"
		require.NoError(t, f.audit.CreateEvent(context.Background(), r))
	}

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{"by id", "?id=o-1", http.StatusOK, 2},
		{"by id and type", "?id=o-1&eventType=DELETED", http.StatusOK, 1},
		{"by email", "?email=alice@x.com", http.StatusOK, 2},
		{"by email and type", "?email=alice@x.com&eventType=CREATED", http.StatusOK, 1},
		{"product entity", "?entity=product&id=o-1", http.StatusOK, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodGet, "/api/v1/events"+tt.query, nil)
			require.Equal(t, tt.code, w.Code)

			var resp []domain.AuditRecord
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp, tt.count)
		})
	}

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/events", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/events?entity=user&id=1", nil).Code)
}
