package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/events"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/repository"
	"github.com/cloud-wave-best-zizon/order-events-service/pkg/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("some product was not found")
	ErrEmptyOrder      = errors.New("order has no products")
	ErrOrderNotFound   = errors.New("order not found")
)

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, email, orderID string) (*domain.Order, error)
	GetOrdersByEmail(ctx context.Context, email string) ([]domain.Order, error)
	GetAllOrders(ctx context.Context) ([]domain.Order, error)
	DeleteOrder(ctx context.Context, email, orderID string) (*domain.Order, error)
}

type ProductCatalog interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// CreateOrderResult reports the two halves of a create separately. The
// order write and the CREATED publish run concurrently and are not atomic:
// either can fail on its own.
type CreateOrderResult struct {
	Order      *domain.Order
	MessageID  string
	PersistErr error
	PublishErr error
}

// Partial is true when exactly one of persist and publish failed.
func (r *CreateOrderResult) Partial() bool {
	return (r.PersistErr == nil) != (r.PublishErr == nil)
}

type DeleteOrderResult struct {
	Order      *domain.Order
	MessageID  string
	PublishErr error
}

type OrderService struct {
	orders    OrderStore
	catalog   ProductCatalog
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewOrderService(orders OrderStore, catalog ProductCatalog, publisher events.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:    orders,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateOrder prices the order from the catalog and, only if every product
// id resolves, saves it and publishes CREATED at the same time.
//
// The returned error is non-nil when nothing was saved (validation, lookup
// or persist failure). A failed publish alone is reported in PublishErr.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.ProductIDs) == 0 {
		return nil, ErrEmptyOrder
	}

	products, err := s.catalog.GetProductsByIDs(ctx, req.ProductIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve products: %w", err)
	}

	order, err := s.buildOrder(req, products)
	if err != nil {
		s.logger.Warn("Order references unknown products",
			zap.String("email", req.Email),
			zap.Strings("product_ids", req.ProductIDs))
		return nil, err
	}

	reqID := requestid.FromContext(ctx)
	result := &CreateOrderResult{Order: order}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.PersistErr = s.orders.CreateOrder(ctx, order)
	}()
	go func() {
		defer wg.Done()
		result.MessageID, result.PublishErr = s.publisher.Publish(ctx, events.OrderCreated{OrderEvent: events.NewOrderEvent(order, reqID)})
	}()
	wg.Wait()

	if result.PublishErr != nil {
		s.logger.Error("Failed to publish order created event",
			zap.String("order_id", order.ID),
			zap.String("request_id", reqID),
			zap.Bool("order_saved", result.PersistErr == nil),
			zap.Error(result.PublishErr))
	}
	if result.PersistErr != nil {
		s.logger.Error("Failed to save order",
			zap.String("order_id", order.ID),
			zap.String("request_id", reqID),
			zap.Bool("event_published", result.PublishErr == nil),
			zap.Error(result.PersistErr))
		return result, fmt.Errorf("failed to save order: %w", result.PersistErr)
	}

	s.logger.Info("Order created successfully",
		zap.String("order_id", order.ID),
		zap.String("email", order.Email),
		zap.Float64("total_price", order.Billing.TotalPrice),
		zap.String("message_id", result.MessageID))

	return result, nil
}

func (s *OrderService) buildOrder(req domain.CreateOrderRequest, products []domain.Product) (*domain.Order, error) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	snapshots := make([]domain.OrderProduct, 0, len(req.ProductIDs))
	var total float64
	for _, id := range req.ProductIDs {
		p, ok := byID[id]
		if !ok {
			return nil, ErrProductNotFound
		}
		snapshots = append(snapshots, p.Snapshot())
		total += p.Price
	}

	return &domain.Order{
		Email:     req.Email,
		ID:        s.newID(),
		CreatedAt: s.now().UnixMilli(),
		Products:  snapshots,
		Billing: domain.Billing{
			Payment:    req.Payment,
			TotalPrice: total,
		},
		Shipping: req.Shipping,
	}, nil
}

// DeleteOrder publishes DELETED with the removed order only after the
// delete succeeded.
func (s *OrderService) DeleteOrder(ctx context.Context, email, orderID string) (*DeleteOrderResult, error) {
	order, err := s.orders.DeleteOrder(ctx, email, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to delete order: %w", err)
	}

	reqID := requestid.FromContext(ctx)
	result := &DeleteOrderResult{Order: order}
	result.MessageID, result.PublishErr = s.publisher.Publish(ctx, events.OrderDeleted{OrderEvent: events.NewOrderEvent(order, reqID)})
	if result.PublishErr != nil {
		s.logger.Error("Failed to publish order deleted event",
			zap.String("order_id", order.ID),
			zap.String("request_id", reqID),
			zap.Error(result.PublishErr))
	}

	s.logger.Info("Order deleted successfully",
		zap.String("order_id", order.ID),
		zap.String("email", order.Email))

	return result, nil
}

func (s *OrderService) GetOrder(ctx context.Context, email, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, email, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *OrderService) GetOrdersByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	return s.orders.GetOrdersByEmail(ctx, email)
}

func (s *OrderService) GetAllOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.GetAllOrders(ctx)
}
