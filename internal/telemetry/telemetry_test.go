package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-sleep/internal/config"
)

func TestNewWithoutEndpointIsNoop(t *testing.T) {
	provider, err := New(context.Background(), config.Config{ServiceName: "valora-sleep"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider.Tracer())

	_, span := provider.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNilProvider(t *testing.T) {
	var provider *Provider
	require.NotNil(t, provider.Tracer())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestServiceAttributes(t *testing.T) {
	attrs := serviceAttributes(config.Config{ServiceName: "valora-sleep", Environment: "production", ServiceVersion: "1.4.0"})

	got := map[string]string{}
	for _, kv := range attrs {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	require.Equal(t, "valora-sleep", got["service.name"])
	require.Equal(t, "production", got["deployment.environment"])
	require.Equal(t, "1.4.0", got["service.version"])
}

func TestSamplerFollowsRatio(t *testing.T) {
	require.True(t, strings.HasPrefix(sampler(config.Config{TelemetrySampleRatio: 1}).Description(), "ParentBased{root:AlwaysOnSampler,"))
	require.True(t, strings.HasPrefix(sampler(config.Config{TelemetrySampleRatio: 0}).Description(), "ParentBased{root:AlwaysOffSampler,"))
	require.True(t, strings.HasPrefix(sampler(config.Config{TelemetrySampleRatio: 0.25}).Description(), "ParentBased{root:TraceIDRatioBased{0.25},"))
}

func TestExporterOptions(t *testing.T) {
	base := config.Config{TelemetryEndpoint: "collector:4318"}
	require.Len(t, exporterOptions(base), 1)

	base.TelemetryInsecure = true
	base.TelemetryHeaders = map[string]string{"x-api-key": "abc"}
	require.Len(t, exporterOptions(base), 3)
}
