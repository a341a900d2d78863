package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, metricsExporter, tracingExporter string) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test-service",
		ServiceVersion:    "1.0.0",
		Enabled:           true,
		MetricsExporter:   metricsExporter,
		TracingExporter:   tracingExporter,
		TraceSamplingRate: 1,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.ServesPrometheus() {
		t.Error("disabled provider must not serve prometheus")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_PrometheusExporter(t *testing.T) {
	provider := newTestProvider(t, ExporterPrometheus, ExporterNone)

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if !provider.ServesPrometheus() {
		t.Error("expected prometheus exporter to be served")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil")
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	provider := newTestProvider(t, ExporterStdout, ExporterStdout)

	if provider.ServesPrometheus() {
		t.Error("stdout exporter must not be served over HTTP")
	}
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name            string
		metricsExporter string
		tracingExporter string
	}{
		{"invalid metrics exporter", "invalid", ExporterNone},
		{"invalid tracing exporter", ExporterPrometheus, "invalid"},
		{"otlp metrics without endpoint", ExporterOTLP, ExporterNone},
		{"otlp tracing without endpoint", ExporterPrometheus, ExporterOTLP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), Config{
				ServiceName:     "test-service",
				Enabled:         true,
				MetricsExporter: tt.metricsExporter,
				TracingExporter: tt.tracingExporter,
			})
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}
