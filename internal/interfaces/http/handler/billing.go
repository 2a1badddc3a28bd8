package handler

import (
	"github.com/gin-gonic/gin"
	appentitlement "github.com/lexora/backend/internal/application/entitlement"
	"github.com/lexora/backend/internal/infrastructure/logger"
	"github.com/lexora/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BillingHandler handles billing and usage API endpoints
type BillingHandler struct {
	BaseHandler
	gate     *appentitlement.Gate
	resolver appentitlement.PlanResolver
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(gate *appentitlement.Gate, resolver appentitlement.PlanResolver) *BillingHandler {
	return &BillingHandler{
		gate:     gate,
		resolver: resolver,
	}
}

// RegisterRoutes registers billing routes on the given router group
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	billing := rg.Group("/billing")
	{
		billing.GET("/usage", h.GetUsage)
	}
}

// GetUsage returns the tenant's current usage against its plan caps
func (h *BillingHandler) GetUsage(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	if tenantID == "" {
		h.Error(c, 400, "ERR_MISSING_TENANT", "Tenant identification required")
		return
	}

	ctx := c.Request.Context()

	plan, err := h.resolver.ResolvePlan(ctx, tenantID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	summary, err := h.gate.Summarize(ctx, tenantID, plan)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to summarize usage",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		h.InternalError(c, "Failed to retrieve usage summary")
		return
	}

	h.Success(c, summary)
}
