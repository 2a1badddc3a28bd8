package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	appentitlement "github.com/lexora/backend/internal/application/entitlement"
	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/lexora/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SoftCapHeaderKey is set on responses once a tenant crosses its soft cap
const SoftCapHeaderKey = "X-Plan-SoftCap"

// TenantPlanKey is the key for storing the resolved plan in context
const TenantPlanKey = "tenant_plan"

// EntitlementConfig holds configuration for plan limit enforcement middleware.
type EntitlementConfig struct {
	// Gate is required for admission decisions
	Gate *appentitlement.Gate
	// PlanResolver is required for resolving the tenant's plan
	PlanResolver appentitlement.PlanResolver
	// SkipPaths are paths exempt from enforcement
	SkipPaths []string
	// SkipPathPrefixes are path prefixes exempt from enforcement
	SkipPathPrefixes []string
	// MeterProvider is optional for admission metrics
	MeterProvider *telemetry.MeterProvider
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultEntitlementConfig returns default enforcement configuration.
func DefaultEntitlementConfig(gate *appentitlement.Gate, resolver appentitlement.PlanResolver) EntitlementConfig {
	return EntitlementConfig{
		Gate:         gate,
		PlanResolver: resolver,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/metrics",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			"/api/v1/auth",
			"/swagger",
			"/api-docs",
		},
	}
}

// entitlementMetrics holds OpenTelemetry metrics for admission decisions.
type entitlementMetrics struct {
	decisionsTotal   *telemetry.Counter
	softCapBreaches  *telemetry.Counter
	rejectedRequests *telemetry.Counter
}

func newEntitlementMetrics(mp *telemetry.MeterProvider) (*entitlementMetrics, error) {
	meter := mp.Meter("entitlement.gate")

	decisionsTotal, err := telemetry.NewCounter(meter,
		"entitlement_decisions_total",
		"Total number of admission decisions made by the entitlement gate",
		"{decision}",
	)
	if err != nil {
		return nil, err
	}

	softCapBreaches, err := telemetry.NewCounter(meter,
		"entitlement_soft_cap_breaches_total",
		"Total number of requests admitted past the soft cap",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	rejectedRequests, err := telemetry.NewCounter(meter,
		"entitlement_rejected_requests_total",
		"Total number of requests rejected at the hard cap",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	return &entitlementMetrics{
		decisionsTotal:   decisionsTotal,
		softCapBreaches:  softCapBreaches,
		rejectedRequests: rejectedRequests,
	}, nil
}

// EnforcePlanLimits returns middleware that checks and records usage for every
// inbound API request outside the configured allowlist. Requests past the
// tenant's hard cap are rejected with 429; requests past the soft cap are
// admitted with a warning header.
//
// Must run after the tenant middleware so GetTenantID is populated.
func EnforcePlanLimits(cfg EntitlementConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics *entitlementMetrics
	if cfg.MeterProvider != nil && cfg.MeterProvider.IsEnabled() {
		m, err := newEntitlementMetrics(cfg.MeterProvider)
		if err != nil {
			logger.Warn("Failed to create entitlement metrics, continuing without metrics", zap.Error(err))
		} else {
			metrics = m
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		tenantID := GetTenantID(c)
		if tenantID == "" {
			respondMissingTenant(c)
			return
		}

		ctx := c.Request.Context()

		plan, err := cfg.PlanResolver.ResolvePlan(ctx, tenantID)
		if err != nil {
			logger.Error("Failed to resolve tenant plan",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ERR_INTERNAL",
					"message": "Failed to determine subscription plan",
				},
			})
			return
		}
		c.Set(TenantPlanKey, plan)

		decision, err := cfg.Gate.CheckAndRecord(ctx, tenantID, plan)
		if err != nil {
			// Fail-closed gate surfaced a store error
			logger.Error("Usage check failed",
				zap.String("tenant_id", tenantID),
				zap.String("plan", plan.Name),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ERR_INTERNAL",
					"message": "Usage tracking unavailable",
				},
			})
			return
		}

		if metrics != nil {
			outcome := "allowed"
			if !decision.Allowed {
				outcome = "rejected"
			}
			metrics.decisionsTotal.Inc(ctx,
				telemetry.AttrTenantID.String(tenantID),
				telemetry.AttrPlan.String(plan.Name),
				telemetry.AttrUnit.String(plan.Unit),
				telemetry.AttrDecision.String(outcome),
			)
		}

		if !decision.Allowed {
			logger.Info("Request rejected at plan hard cap",
				zap.String("tenant_id", tenantID),
				zap.String("plan", plan.Name),
				zap.Int64("current_usage", decision.CurrentUsage),
				zap.Int64("hard_cap", plan.HardCap),
			)
			if metrics != nil {
				metrics.rejectedRequests.Inc(ctx,
					telemetry.AttrTenantID.String(tenantID),
					telemetry.AttrPlan.String(plan.Name),
				)
			}
			// Fixed wire contract for quota rejections: bare body, not
			// the standard response envelope
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "plan_limit_exceeded",
			})
			return
		}

		if decision.SoftCapReached {
			c.Header(SoftCapHeaderKey, "true")
			if metrics != nil {
				metrics.softCapBreaches.Inc(ctx,
					telemetry.AttrTenantID.String(tenantID),
					telemetry.AttrPlan.String(plan.Name),
				)
			}
		}

		c.Next()
	}
}

// GetTenantPlan retrieves the resolved plan from gin.Context.
func GetTenantPlan(c *gin.Context) (entitlement.Plan, bool) {
	if v, exists := c.Get(TenantPlanKey); exists {
		if plan, ok := v.(entitlement.Plan); ok {
			return plan, true
		}
	}
	return entitlement.Plan{}, false
}

// RequirePlan creates middleware that rejects requests from tenants whose
// plan tier is below the required minimum.
func RequirePlan(minimum string, resolver appentitlement.PlanResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		tenantID := GetTenantID(c)
		if tenantID == "" {
			respondMissingTenant(c)
			return
		}

		plan, ok := GetTenantPlan(c)
		if !ok {
			var err error
			plan, err = resolver.ResolvePlan(c.Request.Context(), tenantID)
			if err != nil {
				logger.Error("Failed to resolve tenant plan",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "ERR_INTERNAL",
						"message": "Failed to determine subscription plan",
					},
				})
				return
			}
			c.Set(TenantPlanKey, plan)
		}

		if !plan.AtLeast(minimum) {
			logger.Info("Plan tier too low for route",
				zap.String("tenant_id", tenantID),
				zap.String("plan", plan.Name),
				zap.String("required", minimum),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ERR_PLAN_UPGRADE_REQUIRED",
					"message": "This feature requires the " + minimum + " plan or higher",
				},
			})
			return
		}

		c.Next()
	}
}
