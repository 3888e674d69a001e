package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/escrowd/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Healthy)
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.ForceFlush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.False(t, tel.IsEnabled())
	assert.True(t, tel.Health().Degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, false},
		{"local insecure", func(c *Config) { c.Enabled = true }, false},
		{"loopback ip", func(c *Config) { c.Enabled = true; c.Endpoint = "127.0.0.1:4317" }, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"remote insecure", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"remote tls", func(c *Config) { c.Enabled = true; c.Endpoint = "https://otel.example.com"; c.Insecure = false }, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 }, true},
		{"zero interval", func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 }, true},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromServiceConfig(t *testing.T) {
	cfg := FromServiceConfig(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "escrowd-a",
		OTLPEndpoint:    "collector:4318",
		OTLPProtocol:    "http/protobuf",
		SamplingRate:    0.25,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "escrowd-a", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.Sampling.Rate)
	assert.NoError(t, cfg.Validate())
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "host:4318", stripScheme("https://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("http://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("host:4318"))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOn")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOff")
	assert.Contains(t, newSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestShutdown_UsesConfiguredTimeout(t *testing.T) {
	tt := NewTestTelemetry()
	tt.config.Shutdown.Timeout = config.Duration(time.Second)
	require.NoError(t, tt.Shutdown(context.Background()))
	assert.False(t, tt.Health().Healthy)
}

func TestSetDegraded_RecordsReason(t *testing.T) {
	tel := &Telemetry{config: NewDefaultConfig()}
	tel.healthy.Store(true)
	tel.setDegraded("tracer provider failed: %v", "boom")

	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Equal(t, []string{"tracer provider failed: boom"}, h.Reasons)
}

func TestTestTelemetry_SpansAndCounters(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "task.claim")
	span.SetAttributes(attribute.String("task.name", "alpha"))
	span.End()

	counter, err := tt.Meter("test").Int64Counter("escrowd.test.total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("claim"))
	counter.Add(ctx, 3, metricAttrs("create"))

	tt.AssertSpanExists(t, "task.claim")
	tt.AssertSpanAttribute(t, "task.claim", "task.name", "alpha")
	assert.Equal(t, int64(5), tt.CounterValue(t, "escrowd.test.total"))
	assert.Equal(t, int64(2), tt.CounterValue(t, "escrowd.test.total", attribute.String("operation", "claim")))
	assert.Equal(t, int64(0), tt.CounterValue(t, "escrowd.missing"))
}

func metricAttrs(op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("operation", op))
}
