// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for templatemail.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: HTTP requests by method, route and status
//   - http_request_duration_seconds: HTTP request durations
//   - active_sessions: open web UI sessions
//
// Rewrites:
//   - template_rewrites_total: AI rewrites by result (accepted, rejected, failed)
//   - generation_duration_seconds: model request durations by status
//
// Delivery:
//   - email_deliveries_total: sends by channel (gmail, webhook) and status
//   - email_delivery_duration_seconds: send durations
//   - oauth_auth_total: Gmail authorizations by result
//
// MCP tools:
//   - mcp_tool_invocations_total and mcp_tool_duration_seconds by tool and status
//
// All recording methods accept a nil *Metrics, so callers never need to
// check whether instrumentation is enabled.
//
// # Tracing
//
// Spans are created for rewrites (rewrite.template), model requests
// (gemini.generate), deliveries (delivery.<channel>) and MCP tool calls
// (tool.<name>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable or disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate from 0.0 to 1.0 (default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: templatemail)
//   - METRICS_DETAILED_LABELS: add template names to rewrite metrics
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII: audit log behavior
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordDelivery(ctx, instrumentation.ChannelWebhook, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
