package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	appentitlement "github.com/lexora/backend/internal/application/entitlement"
	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/lexora/backend/internal/infrastructure/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateStack(t *testing.T, plans []entitlement.Plan, defaultPlan string, overrides map[string]string) (*appentitlement.Gate, appentitlement.PlanResolver, usage.Store) {
	t.Helper()
	store := usage.NewMemoryStore()
	gate := appentitlement.NewGate(store, zap.NewNop())
	resolver, err := appentitlement.NewStaticPlanResolver(plans, defaultPlan, overrides)
	require.NoError(t, err)
	return gate, resolver, store
}

func newEnforcedRouter(gate *appentitlement.Gate, resolver appentitlement.PlanResolver) *gin.Engine {
	router := gin.New()
	router.Use(TenantMiddleware())
	router.Use(EnforcePlanLimits(DefaultEntitlementConfig(gate, resolver)))
	router.GET("/api/v1/documents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func doTenantRequest(router *gin.Engine, tenantID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set(TenantHeaderKey, tenantID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEnforcePlanLimits_AllowsUnderCap(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Free", Unit: entitlement.UnitAPICalls, SoftCap: 500, HardCap: 750},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Free", nil)
	router := newEnforcedRouter(gate, resolver)

	w := doTenantRequest(router, "tenant-a")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(SoftCapHeaderKey))
}

func TestEnforcePlanLimits_SoftCapHeader(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Tiny", Unit: entitlement.UnitAPICalls, SoftCap: 2, HardCap: 5},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Tiny", nil)
	router := newEnforcedRouter(gate, resolver)

	w := doTenantRequest(router, "tenant-a")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(SoftCapHeaderKey))

	// Second request reaches the soft cap
	w = doTenantRequest(router, "tenant-a")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(SoftCapHeaderKey))
}

func TestEnforcePlanLimits_HardCapRejection(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Tiny", Unit: entitlement.UnitAPICalls, SoftCap: 2, HardCap: 3},
	}
	gate, resolver, store := newTestGateStack(t, plans, "Tiny", nil)
	router := newEnforcedRouter(gate, resolver)

	for i := 0; i < 3; i++ {
		w := doTenantRequest(router, "tenant-a")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should be admitted", i+1)
	}

	// Hard cap exhausted: exact JSON body on rejection
	w := doTenantRequest(router, "tenant-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error": "plan_limit_exceeded"}`, w.Body.String())

	// Rejected request was not charged
	count, err := store.Get(context.Background(), "tenant-a", entitlement.UnitAPICalls)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestEnforcePlanLimits_TenantsAreIsolated(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Tiny", Unit: entitlement.UnitAPICalls, SoftCap: 1, HardCap: 1},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Tiny", nil)
	router := newEnforcedRouter(gate, resolver)

	w := doTenantRequest(router, "tenant-a")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doTenantRequest(router, "tenant-a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Another tenant is unaffected
	w = doTenantRequest(router, "tenant-b")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEnforcePlanLimits_SkipPaths(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Zero", Unit: entitlement.UnitAPICalls, SoftCap: 0, HardCap: 0},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Zero", nil)

	router := gin.New()
	router.Use(EnforcePlanLimits(DefaultEntitlementConfig(gate, resolver)))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Allowlisted paths bypass the gate even at a zero-cap plan
	for _, path := range []string{"/health", "/api/v1/auth/login"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestEnforcePlanLimits_MissingTenant(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Free", Unit: entitlement.UnitAPICalls, SoftCap: 500, HardCap: 750},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Free", nil)

	router := gin.New()
	router.Use(EnforcePlanLimits(DefaultEntitlementConfig(gate, resolver)))
	router.GET("/api/v1/documents", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnforcePlanLimits_PerTenantOverride(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Free", Unit: entitlement.UnitAPICalls, SoftCap: 1, HardCap: 1},
		{Name: "Pro", Unit: entitlement.UnitAPICalls, SoftCap: 5000, HardCap: 7500},
	}
	gate, resolver, _ := newTestGateStack(t, plans, "Free", map[string]string{
		"tenant-pro": "Pro",
	})
	router := newEnforcedRouter(gate, resolver)

	// Default tenant hits the Free hard cap immediately after one request
	w := doTenantRequest(router, "tenant-free")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doTenantRequest(router, "tenant-free")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Override tenant keeps going
	for i := 0; i < 5; i++ {
		w = doTenantRequest(router, "tenant-pro")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRequirePlan_RejectsLowerTier(t *testing.T) {
	plans := []entitlement.Plan{
		{Name: "Free", Unit: entitlement.UnitAPICalls, SoftCap: 500, HardCap: 750},
		{Name: "Team", Unit: entitlement.UnitAPICalls, SoftCap: 20000, HardCap: 30000},
	}
	_, resolver, _ := newTestGateStack(t, plans, "Free", map[string]string{
		"tenant-team": "Team",
	})

	router := gin.New()
	router.Use(TenantMiddleware())
	router.GET("/api/v1/exports",
		RequirePlan(entitlement.TierTeam, resolver, zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports", nil)
	req.Header.Set(TenantHeaderKey, "tenant-free")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_PLAN_UPGRADE_REQUIRED")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/exports", nil)
	req.Header.Set(TenantHeaderKey, "tenant-team")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
