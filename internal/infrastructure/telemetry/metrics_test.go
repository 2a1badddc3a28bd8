package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/lexora/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	cfg := telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    60 * time.Second,
		ServiceName:       "test-service",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, mp)

	assert.False(t, mp.IsEnabled())

	// Shutdown should succeed with no-op
	err = mp.Shutdown(ctx)
	assert.NoError(t, err)
}

func TestMeterProvider_Meter_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)

	// Should return a no-op meter rather than nil
	meter := mp.Meter("test-meter")
	require.NotNil(t, meter)

	counter, err := telemetry.NewCounter(meter, "test_requests_total", "Test request counter", "{request}")
	require.NoError(t, err)

	// Recording against a no-op meter must not panic
	counter.Inc(ctx, telemetry.AttrTenantID.String("tenant-1"))
	counter.Add(ctx, 5, telemetry.AttrPlan.String("Pro"))
}

func TestMeterProvider_ForceFlush_Disabled(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)

	err = mp.ForceFlush(ctx)
	assert.NoError(t, err)
}
