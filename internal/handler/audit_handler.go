package handler

import (
	"context"
	"net/http"

	"github.com/cloud-wave-best-zizon/order-events-service/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuditQuerier interface {
	GetEntityEvents(ctx context.Context, entity domain.Entity, id, eventType string) ([]domain.AuditRecord, error)
	GetEventsByEmail(ctx context.Context, email string, entity domain.Entity) ([]domain.AuditRecord, error)
	GetEventsByEmailAndEventType(ctx context.Context, email, eventType string) ([]domain.AuditRecord, error)
}

type AuditHandler struct {
	audit  AuditQuerier
	logger *zap.Logger
}

func NewAuditHandler(audit AuditQuerier, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events", h.GetEvents)
}

// GetEvents serves ?entity=order&id=<id>[&eventType=], ?email=<email>[&entity=]
// and ?email=<email>&eventType=<type>.
func (h *AuditHandler) GetEvents(c *gin.Context) {
	ctx := c.Request.Context()
	email := c.Query("email")
	id := c.Query("id")
	eventType := c.Query("eventType")
	entity := domain.Entity(c.DefaultQuery("entity", string(domain.EntityOrder)))

	if entity != domain.EntityOrder && entity != domain.EntityProduct {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entity must be order or product"})
		return
	}

	var (
		records []domain.AuditRecord
		err     error
	)
	switch {
	case id != "":
		records, err = h.audit.GetEntityEvents(ctx, entity, id, eventType)
	case email != "" && eventType != "":
		records, err = h.audit.GetEventsByEmailAndEventType(ctx, email, eventType)
	case email != "":
		records, err = h.audit.GetEventsByEmail(ctx, email, entity)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "id or email is required"})
		return
	}

	if err != nil {
		h.logger.Error("Failed to query audit records",
			zap.String("email", email),
			zap.String("id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query events"})
		return
	}

	if records == nil {
		records = []domain.AuditRecord{}
	}
	c.JSON(http.StatusOK, records)
}
