package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"


	"github.com/teemow/templatemail/internal/logging"
)

// Action is an auditable operation. It covers MCP tool calls as well as
// rewrites and sends started from the web UI or the CLI.
//
// Recipients holds PII. LogAttrs hashes it; only LogAuditAttrs with
// IncludePII enabled writes addresses in clear text.
type Action struct {
	// Name is the tool name or UI/CLI operation ("template_send", "ui.send").
	Name string

	Template   string
	Channel    string
	Recipients []string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewAction creates an Action with timing started.
// Call Complete when the operation finishes.
func NewAction(name string) *Action {
	return &Action{
		Name:      name,
		StartTime: time.Now(),
	}
}

// WithTemplate sets the template the action operated on.
func (a *Action) WithTemplate(name string) *Action {
	a.Template = name
	return a
}

// WithDelivery sets the delivery channel and recipients.
func (a *Action) WithDelivery(channel string, recipients []string) *Action {
	a.Channel = channel
	a.Recipients = recipients
	return a
}

// WithSpanContext copies the trace context of the current span.
func (a *Action) WithSpanContext(ctx context.Context) *Action {
	a.TraceID = GetTraceID(ctx)
	a.SpanID = GetSpanID(ctx)
	return a
}

// Complete marks the action as finished and records its duration.
func (a *Action) Complete(err error) *Action {
	a.Duration = time.Since(a.StartTime)
	a.Success = err == nil
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Status returns StatusSuccess or StatusError.
func (a *Action) Status() string {
	if a.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns attributes safe for operational logs: recipients are
// reduced to hashes.
func (a *Action) LogAttrs() []slog.Attr {
	attrs := a.baseAttrs()
	if len(a.Recipients) > 0 {
		attrs = append(attrs, logging.Recipients(a.Recipients))
	}
	return a.appendTail(attrs)
}

// LogAuditAttrs returns attributes with recipient addresses in clear text.
// Route these logs to storage with appropriate access controls.
func (a *Action) LogAuditAttrs() []slog.Attr {
	attrs := a.baseAttrs()
	if len(a.Recipients) > 0 {
		attrs = append(attrs, slog.String("recipients", strings.Join(a.Recipients, ",")))
	}
	return a.appendTail(attrs)
}

func (a *Action) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", a.Name),
		slog.Duration(logging.KeyDuration, a.Duration),
		slog.Bool("success", a.Success),
	}
	if a.Template != "" {
		attrs = append(attrs, logging.Template(a.Template))
	}
	if a.Channel != "" {
		attrs = append(attrs, logging.Channel(a.Channel))
	}
	return attrs
}

func (a *Action) appendTail(attrs []slog.Attr) []slog.Attr {
	if a.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", a.TraceID))
	}
	if a.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", a.SpanID))
	}
	if a.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, a.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per auditable action.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger that hashes recipients.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the action. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, a *Action) {
	if al == nil || !al.enabled || a == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = a.LogAuditAttrs()
	} else {
		attrs = a.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "action_completed"
	if !a.Success {
		level = slog.LevelWarn
		msg = "action_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
