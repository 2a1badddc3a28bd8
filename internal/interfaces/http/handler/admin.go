package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/lexora/backend/internal/infrastructure/logger"
	"github.com/lexora/backend/internal/infrastructure/usage"
	"go.uber.org/zap"
)

// AdminUsageHandler exposes usage counter resets for development and test
// environments. It must never be registered on production request paths.
type AdminUsageHandler struct {
	BaseHandler
	store usage.Store
}

// NewAdminUsageHandler creates a new AdminUsageHandler
func NewAdminUsageHandler(store usage.Store) *AdminUsageHandler {
	return &AdminUsageHandler{store: store}
}

// RegisterRoutes registers admin usage routes on the given router group
func (h *AdminUsageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin/usage")
	{
		admin.POST("/reset", h.ResetUsage)
		admin.POST("/reset-all", h.ResetAllUsage)
	}
}

// ResetUsageRequest identifies a single counter to reset
type ResetUsageRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
}

// ResetUsage zeroes a single tenant/unit counter
func (h *AdminUsageHandler) ResetUsage(c *gin.Context) {
	var req ResetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "tenant_id and unit are required")
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Reset(ctx, req.TenantID, req.Unit); err != nil {
		logger.FromContext(ctx).Error("Failed to reset usage counter",
			zap.String("tenant_id", req.TenantID),
			zap.String("unit", req.Unit),
			zap.Error(err),
		)
		h.InternalError(c, "Failed to reset usage counter")
		return
	}

	h.NoContent(c)
}

// ResetAllUsage zeroes every counter in the store
func (h *AdminUsageHandler) ResetAllUsage(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.ResetAll(ctx); err != nil {
		logger.FromContext(ctx).Error("Failed to reset usage counters", zap.Error(err))
		h.InternalError(c, "Failed to reset usage counters")
		return
	}

	h.NoContent(c)
}
