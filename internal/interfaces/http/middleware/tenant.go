package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexora/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantResolver extracts a tenant identifier from the request.
// Resolvers are tried in order; the first one that reports ok wins.
type TenantResolver interface {
	ResolveTenant(c *gin.Context) (tenantID string, ok bool)
	Name() string
}

type tenantResolverFunc struct {
	name string
	fn   func(c *gin.Context) (string, bool)
}

func (r tenantResolverFunc) ResolveTenant(c *gin.Context) (string, bool) { return r.fn(c) }
func (r tenantResolverFunc) Name() string                                { return r.name }

// FromJWTClaims resolves the tenant from the tenant_id claim of an
// authenticated JWT (requires the JWT middleware to run first).
func FromJWTClaims() TenantResolver {
	return tenantResolverFunc{
		name: "jwt",
		fn: func(c *gin.Context) (string, bool) {
			tid := GetJWTTenantID(c)
			return tid, tid != ""
		},
	}
}

// FromHeader resolves the tenant from the X-Tenant-ID request header.
func FromHeader() TenantResolver {
	return tenantResolverFunc{
		name: "header",
		fn: func(c *gin.Context) (string, bool) {
			tid := c.GetHeader(TenantHeaderKey)
			return tid, tid != ""
		},
	}
}

// FromAuthenticatedUser derives a personal tenant from the authenticated
// user id when neither claims nor headers carry one.
func FromAuthenticatedUser() TenantResolver {
	return tenantResolverFunc{
		name: "user",
		fn: func(c *gin.Context) (string, bool) {
			uid := GetJWTUserID(c)
			if uid == "" {
				return "", false
			}
			return "user:" + uid, true
		},
	}
}

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// Resolvers are tried in order; first hit wins
	Resolvers []TenantResolver
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// Required determines if tenant context is mandatory
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		Resolvers: []TenantResolver{
			FromJWTClaims(),
			FromHeader(),
			FromAuthenticatedUser(),
		},
		SkipPaths: []string{"/health", "/healthz", "/ready", "/metrics"},
		Required:  true,
	}
}

// TenantMiddleware extracts tenant information from the request.
// Resolution order: JWT claims > X-Tenant-ID header > authenticated user fallback.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		var tenantID string
		var extractionMethod string
		for _, resolver := range cfg.Resolvers {
			if tid, ok := resolver.ResolveTenant(c); ok {
				tenantID = tid
				extractionMethod = resolver.Name()
				break
			}
		}

		if tenantID == "" && cfg.Required {
			respondMissingTenant(c)
			return
		}

		if tenantID != "" {
			c.Set(TenantIDKey, tenantID)

			// Set in request context for service layer access
			ctx := c.Request.Context()
			log := logger.FromContext(ctx)
			ctx, _ = logger.WithTenantID(ctx, log, tenantID)
			c.Request = c.Request.WithContext(ctx)

			if cfg.Logger != nil {
				cfg.Logger.Debug("Tenant identified",
					zap.String("tenant_id", tenantID),
					zap.String("method", extractionMethod),
				)
			}
		}

		c.Next()
	}
}

// respondMissingTenant rejects a request for which no tenant could be resolved
func respondMissingTenant(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_MISSING_TENANT",
			"message": "Tenant identification required",
		},
	})
}

// GetTenantID retrieves the tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if tid, ok := tenantID.(string); ok {
			return tid
		}
	}
	return ""
}

// OptionalTenantMiddleware creates middleware that doesn't require tenant
func OptionalTenantMiddleware() gin.HandlerFunc {
	cfg := DefaultTenantConfig()
	cfg.Required = false
	return TenantMiddlewareWithConfig(cfg)
}
