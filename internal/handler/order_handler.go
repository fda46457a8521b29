package handler

import (
	"errors"
	"net/http"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/cloud-wave-best-zizon/order-events-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

func (h *OrderHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/orders", h.GetOrders)
	rg.POST("/orders", h.CreateOrder)
	rg.DELETE("/orders", h.DeleteOrder)
}

// GetOrders lists all orders, the orders of ?email, or the single order
// (?email&orderId). A query without email matches nothing.
func (h *OrderHandler) GetOrders(c *gin.Context) {
	email := c.Query("email")
	orderID := c.Query("orderId")
	ctx := c.Request.Context()

	var (
		orders []domain.Order
		err    error
	)
	switch {
	case email != "" && orderID != "":
		var order *domain.Order
		order, err = h.orderService.GetOrder(ctx, email, orderID)
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if order != nil {
			orders = append(orders, *order)
		}
	case email != "":
		orders, err = h.orderService.GetOrdersByEmail(ctx, email)
	case len(c.Request.URL.Query()) > 0:
	default:
		orders, err = h.orderService.GetAllOrders(ctx)
	}

	if err != nil {
		h.logger.Error("Failed to get orders",
			zap.String("email", email),
			zap.String("order_id", orderID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get orders"})
		return
	}

	response := make([]domain.OrderResponse, 0, len(orders))
	for i := range orders {
		response = append(response, domain.NewOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, response)
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return
	}

	result, err := h.orderService.CreateOrder(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) || errors.Is(err, service.ErrEmptyOrder) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		h.logger.Error("Failed to create order",
			zap.String("email", req.Email),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create order",
		})
		return
	}

	// 이벤트 발행 실패는 주문 생성 응답에 영향을 주지 않음
	if result.PublishErr != nil {
		h.logger.Warn("Order saved without event",
			zap.String("order_id", result.Order.ID),
			zap.Error(result.PublishErr))
	}

	c.JSON(http.StatusCreated, domain.NewOrderResponse(result.Order))
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	email := c.Query("email")
	orderID := c.Query("orderId")
	if email == "" || orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and orderId are required"})
		return
	}

	result, err := h.orderService.DeleteOrder(c.Request.Context(), email, orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}

		h.logger.Error("Failed to delete order",
			zap.String("email", email),
			zap.String("order_id", orderID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order"})
		return
	}

	c.JSON(http.StatusOK, domain.NewOrderResponse(result.Order))
}
