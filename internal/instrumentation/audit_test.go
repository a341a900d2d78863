package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/teemow/templatemail/internal/logging"
)

const (
	testRecipient = "jane@example.com"
	testTemplate  = "welcome.html"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestAction_Complete(t *testing.T) {
	a := NewAction("template_send").WithTemplate(testTemplate)
	if a.StartTime.IsZero() {
		t.Fatal("StartTime should be set")
	}

	a.Complete(nil)
	if !a.Success || a.Error != "" || a.Status() != StatusSuccess {
		t.Errorf("unexpected success state: %+v", a)
	}
	if a.Duration < 0 {
		t.Error("Duration should not be negative")
	}

	a.Complete(errors.New("webhook returned 500"))
	if a.Success || a.Error != "webhook returned 500" || a.Status() != StatusError {
		t.Errorf("unexpected failure state: %+v", a)
	}
}

func TestAuditLogger_HashesRecipientsByDefault(t *testing.T) {
	logger, buf := newBufferLogger()
	al := NewAuditLogger(logger)

	a := NewAction("ui.send").
		WithTemplate(testTemplate).
		WithDelivery(ChannelGmail, []string{testRecipient}).
		Complete(nil)
	al.Log(context.Background(), a)

	if strings.Contains(buf.String(), testRecipient) {
		t.Fatalf("recipient leaked into log: %s", buf.String())
	}
	entry := decodeEntry(t, buf)
	if entry["msg"] != "action_completed" || entry["level"] != "INFO" {
		t.Errorf("unexpected entry header: %v", entry)
	}
	if entry[logging.KeyRecipient] != logging.AnonymizeEmail(testRecipient) {
		t.Errorf("recipient hash = %v", entry[logging.KeyRecipient])
	}
	if entry[logging.KeyTemplate] != testTemplate || entry[logging.KeyChannel] != ChannelGmail {
		t.Errorf("template/channel missing: %v", entry)
	}
	if entry["component"] != "audit" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	logger, buf := newBufferLogger()
	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})

	a := NewAction("template_send").
		WithDelivery(ChannelWebhook, []string{testRecipient, "kim@example.com"}).
		Complete(errors.New("boom"))
	al.Log(context.Background(), a)

	entry := decodeEntry(t, buf)
	if entry["recipients"] != testRecipient+",kim@example.com" {
		t.Errorf("recipients = %v", entry["recipients"])
	}
	if entry["msg"] != "action_failed" || entry["level"] != "WARN" {
		t.Errorf("failed actions must log at warn: %v", entry)
	}
	if entry[logging.KeyError] != "boom" {
		t.Errorf("error = %v", entry[logging.KeyError])
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	logger, buf := newBufferLogger()
	NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: false}).
		Log(context.Background(), NewAction("x").Complete(nil))
	if buf.Len() != 0 {
		t.Errorf("disabled audit logger wrote %q", buf.String())
	}

	var al *AuditLogger
	al.Log(context.Background(), NewAction("x").Complete(nil))
}

func TestAction_WithSpanContext(t *testing.T) {
	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "audited")
	defer span.End()

	a := NewAction("template_rewrite").WithSpanContext(ctx)
	if a.TraceID == "" || a.SpanID == "" {
		t.Errorf("expected trace context, got %+v", a)
	}

	logger, buf := newBufferLogger()
	NewAuditLogger(logger).Log(ctx, a.Complete(nil))
	if entry := decodeEntry(t, buf); entry["trace_id"] != a.TraceID {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
}
