package telemetry_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/airglance/airglance/internal/telemetry"
)

func TestInit_DisabledInstallsPropagationOnly(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{ServiceName: "airglance-api"})
	require.NoError(t, err)

	assert.False(t, provider.Exporting())
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestStart_DisabledStopIsSafe(t *testing.T) {
	var buf bytes.Buffer
	stop, err := telemetry.Start(context.Background(), telemetry.Config{ServiceName: "airglance-worker"}, zerolog.New(&buf))
	require.NoError(t, err)

	assert.NotPanics(t, stop)
	assert.Contains(t, buf.String(), "telemetry export disabled")
	assert.NotContains(t, buf.String(), "failed to flush")
}

func TestResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "k8s.pod.name=api-7d9f")

	cfg := telemetry.Config{ServiceName: "airglance-api", ServiceVersion: "1.4.0", Environment: "production"}
	res, err := telemetry.Resource(context.Background(), cfg)
	require.NoError(t, err)

	set := res.Set()
	lookup := func(key string) string {
		v, ok := set.Value(attribute.Key(key))
		require.True(t, ok, "missing %s", key)
		return v.AsString()
	}
	assert.Equal(t, "airglance-api", lookup("service.name"))
	assert.Equal(t, "1.4.0", lookup("service.version"))
	assert.Equal(t, "production", lookup("deployment.environment"))
	assert.Equal(t, "api-7d9f", lookup("k8s.pod.name"))

	other, err := telemetry.Resource(context.Background(), cfg)
	require.NoError(t, err)
	otherID, _ := other.Set().Value("service.instance.id")
	assert.NotEqual(t, lookup("service.instance.id"), otherID.AsString())
}

func TestSampler(t *testing.T) {
	always := sdktrace.AlwaysSample().Description()

	tests := []struct {
		ratio float64
		want  string
	}{
		{0, always},
		{1, always},
		{-0.5, always},
		{1.5, always},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Contains(t, telemetry.Sampler(tt.ratio).Description(), tt.want, "ratio %v", tt.ratio)
	}
}
