package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexora/backend/internal/domain/entitlement"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Log         LogConfig
	HTTP        HTTPConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Usage       UsageConfig
	Entitlement EntitlementConfig
	Telemetry   TelemetryConfig
	Plans       []PlanConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// UsageConfig selects and tunes the usage counter store
type UsageConfig struct {
	// Backend is "memory" (single instance) or "redis" (shared counters
	// across replicas)
	Backend string
	// KeyPrefix namespaces counter keys in the Redis backend
	KeyPrefix string
	// FailOpen admits requests with an assumed zero count when the
	// store is unreachable. Disable only where over-admission is worse
	// than a full outage for metered traffic.
	FailOpen bool
}

// EntitlementConfig holds admission-control settings
type EntitlementConfig struct {
	// DefaultPlan is assigned to tenants without an explicit override
	DefaultPlan string
	// TenantPlans maps tenant IDs to plan names, overriding DefaultPlan
	TenantPlans map[string]string
	// SkipPaths are exact paths exempt from metering
	SkipPaths []string
	// SkipPathPrefixes are path prefixes exempt from metering
	SkipPathPrefixes []string
}

// TelemetryConfig holds OpenTelemetry metrics configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
}

// PlanConfig is one entry of the configured plan table
type PlanConfig struct {
	Name    string `mapstructure:"name"`
	Unit    string `mapstructure:"unit"`
	SoftCap int64  `mapstructure:"soft_cap"`
	HardCap int64  `mapstructure:"hard_cap"`
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEXORA_ prefix (e.g., LEXORA_REDIS_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LEXORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Usage: UsageConfig{
			Backend:   v.GetString("usage.backend"),
			KeyPrefix: v.GetString("usage.key_prefix"),
			FailOpen:  v.GetBool("usage.fail_open"),
		},
		Entitlement: EntitlementConfig{
			DefaultPlan:      v.GetString("entitlement.default_plan"),
			TenantPlans:      v.GetStringMapString("entitlement.tenant_plans"),
			SkipPaths:        v.GetStringSlice("entitlement.skip_paths"),
			SkipPathPrefixes: v.GetStringSlice("entitlement.skip_path_prefixes"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	if err := v.UnmarshalKey("plans", &cfg.Plans); err != nil {
		return nil, fmt.Errorf("error parsing plan table: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers built-in defaults
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lexora-backend")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.max_header_bytes", 1<<20)

	v.SetDefault("jwt.issuer", "lexora")
	v.SetDefault("jwt.access_token_expiration", "15m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("usage.backend", "memory")
	v.SetDefault("usage.key_prefix", "usage:")
	v.SetDefault("usage.fail_open", true)

	v.SetDefault("entitlement.default_plan", entitlement.TierFree)
	v.SetDefault("entitlement.skip_paths", []string{
		"/health",
		"/healthz",
		"/ready",
		"/metrics",
		"/api/v1/system/ping",
		"/api/v1/system/info",
	})
	v.SetDefault("entitlement.skip_path_prefixes", []string{
		"/api/v1/auth",
		"/swagger",
		"/api-docs",
	})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "lexora-backend")
	v.SetDefault("telemetry.export_interval", "60s")
}

// Validate checks cross-field invariants that viper cannot express
func (c *Config) Validate() error {
	switch c.Usage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("usage.backend must be \"memory\" or \"redis\", got %q", c.Usage.Backend)
	}

	plans := c.PlanTable()
	names := make(map[string]bool, len(plans))
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid plan %q: %w", p.Name, err)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate plan name %q", p.Name)
		}
		names[p.Name] = true
	}
	if !names[c.Entitlement.DefaultPlan] {
		return fmt.Errorf("entitlement.default_plan %q is not in the plan table", c.Entitlement.DefaultPlan)
	}
	return nil
}

// PlanTable converts the configured plan entries to domain plans,
// falling back to the built-in table when none are configured.
func (c *Config) PlanTable() []entitlement.Plan {
	if len(c.Plans) == 0 {
		return entitlement.DefaultPlans()
	}
	plans := make([]entitlement.Plan, 0, len(c.Plans))
	for _, p := range c.Plans {
		plans = append(plans, entitlement.Plan{
			Name:    p.Name,
			Unit:    p.Unit,
			SoftCap: p.SoftCap,
			HardCap: p.HardCap,
		})
	}
	return plans
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
