package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrResult   = "result"
	attrTool     = "tool"
	attrChannel  = "channel"
	attrTemplate = "template"
)

// Metrics records application metrics. The zero value and a nil *Metrics
// are both valid and record nothing.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeSessions      metric.Int64UpDownCounter

	// Rewrite metrics
	rewritesTotal      metric.Int64Counter
	generationDuration metric.Float64Histogram

	// Delivery metrics
	deliveriesTotal  metric.Int64Counter
	deliveryDuration metric.Float64Histogram
	oauthAuthTotal   metric.Int64Counter

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates every instrument on the given meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}
	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active UI sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	m.rewritesTotal, err = meter.Int64Counter(
		"template_rewrites_total",
		metric.WithDescription("Total number of AI template rewrites by result"),
		metric.WithUnit("{rewrite}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create template_rewrites_total counter: %w", err)
	}

	// Generations can take tens of seconds for long templates.
	m.generationDuration, err = meter.Float64Histogram(
		"generation_duration_seconds",
		metric.WithDescription("Generative model request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation_duration_seconds histogram: %w", err)
	}

	m.deliveriesTotal, err = meter.Int64Counter(
		"email_deliveries_total",
		metric.WithDescription("Total number of email deliveries by channel and status"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email_deliveries_total counter: %w", err)
	}

	m.deliveryDuration, err = meter.Float64Histogram(
		"email_delivery_duration_seconds",
		metric.WithDescription("Email delivery duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create email_delivery_duration_seconds histogram: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of Gmail OAuth authorizations"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route, status code, and duration.
// path should be a route template, not the raw URL, to bound cardinality.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGeneration records the duration of one model request.
func (m *Metrics) RecordGeneration(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.generationDuration == nil {
		return
	}
	m.generationDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordRewrite counts a finished rewrite.
// result is one of RewriteResultAccepted, RewriteResultRejected or RewriteResultFailed.
func (m *Metrics) RecordRewrite(ctx context.Context, result string) {
	m.RecordRewriteForTemplate(ctx, result, "")
}

// RecordRewriteForTemplate is RecordRewrite with the template name attached
// when detailed labels are enabled.
func (m *Metrics) RecordRewriteForTemplate(ctx context.Context, result, template string) {
	if m == nil || m.rewritesTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrResult, result)}
	if label := TemplateLabel(template, m.detailedLabels); label != "" {
		attrs = append(attrs, attribute.String(attrTemplate, label))
	}
	m.rewritesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDelivery records an email delivery attempt on a channel.
func (m *Metrics) RecordDelivery(ctx context.Context, channel, status string, duration time.Duration) {
	if m == nil || m.deliveriesTotal == nil || m.deliveryDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrChannel, channel),
		attribute.String(attrStatus, status),
	)
	m.deliveriesTotal.Add(ctx, 1, attrs)
	m.deliveryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records a Gmail authorization attempt.
// result is OAuthResultSuccess or OAuthResultFailure.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
