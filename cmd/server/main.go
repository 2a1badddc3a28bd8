package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appentitlement "github.com/lexora/backend/internal/application/entitlement"
	"github.com/lexora/backend/internal/infrastructure/auth"
	"github.com/lexora/backend/internal/infrastructure/config"
	"github.com/lexora/backend/internal/infrastructure/logger"
	"github.com/lexora/backend/internal/infrastructure/telemetry"
	"github.com/lexora/backend/internal/infrastructure/usage"
	"github.com/lexora/backend/internal/interfaces/http/handler"
	"github.com/lexora/backend/internal/interfaces/http/middleware"
	"github.com/lexora/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Lexora Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize usage counter store
	var store usage.Store
	switch cfg.Usage.Backend {
	case "redis":
		redisStore, err := usage.NewRedisStore(usage.RedisConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Usage.KeyPrefix,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Error("Error closing Redis store", zap.Error(err))
			}
		}()
		store = redisStore
		log.Info("Usage store initialized",
			zap.String("backend", "redis"),
			zap.String("host", cfg.Redis.Host),
		)
	default:
		store = usage.NewMemoryStore()
		log.Info("Usage store initialized", zap.String("backend", "memory"))
	}

	// Initialize plan resolution and the entitlement gate
	planResolver, err := appentitlement.NewStaticPlanResolver(
		cfg.PlanTable(),
		cfg.Entitlement.DefaultPlan,
		cfg.Entitlement.TenantPlans,
	)
	if err != nil {
		log.Fatal("Failed to build plan resolver", zap.Error(err))
	}

	gateOpts := []appentitlement.GateOption{}
	if !cfg.Usage.FailOpen {
		gateOpts = append(gateOpts, appentitlement.FailClosed())
	}
	gate := appentitlement.NewGate(store, log, gateOpts...)

	// Initialize OpenTelemetry metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Identity services
	jwtService := auth.NewJWTService(cfg.JWT)

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Metrics - Record request count and latency
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. JWT auth - Authenticate API requests
	// 8. Tenant - Resolve tenant context
	// 9. Entitlement - Check and record plan usage
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))

	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService:       jwtService,
		SkipPaths:        cfg.Entitlement.SkipPaths,
		SkipPathPrefixes: cfg.Entitlement.SkipPathPrefixes,
		Logger:           log,
	}
	engine.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	tenantConfig := middleware.DefaultTenantConfig()
	tenantConfig.SkipPaths = cfg.Entitlement.SkipPaths
	tenantConfig.Logger = log
	engine.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	entitlementConfig := middleware.DefaultEntitlementConfig(gate, planResolver)
	entitlementConfig.SkipPaths = cfg.Entitlement.SkipPaths
	entitlementConfig.SkipPathPrefixes = cfg.Entitlement.SkipPathPrefixes
	entitlementConfig.MeterProvider = meterProvider
	entitlementConfig.Logger = log
	engine.Use(middleware.EnforcePlanLimits(entitlementConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(store))

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewSystemHandler())
	r.Register(handler.NewBillingHandler(gate, planResolver))

	// Usage reset endpoints are for development and test only
	if !cfg.IsProduction() {
		r.Register(handler.NewAdminUsageHandler(store))
		log.Warn("Admin usage reset endpoints enabled", zap.String("env", cfg.App.Env))
	}

	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(store usage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if _, err := store.Get(ctx, "health", "probe"); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"time":   time.Now().Format(time.RFC3339),
				"store":  "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
			"store":  "ok",
		})
	}
}
