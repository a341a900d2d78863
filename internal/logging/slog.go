package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyTemplate  = "template"
	KeyChannel   = "channel"
	KeyRecipient = "recipient_hash"
	KeySession   = "session"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithTemplate returns a logger with the template attribute set.
func WithTemplate(logger *slog.Logger, template string) *slog.Logger {
	return logger.With(slog.String(KeyTemplate, template))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Template returns a slog attribute for the template file name.
func Template(name string) slog.Attr {
	return slog.String(KeyTemplate, name)
}

// Channel returns a slog attribute for the delivery channel (gmail, webhook).
func Channel(channel string) slog.Attr {
	return slog.String(KeyChannel, channel)
}

// Session returns a slog attribute with a shortened session identifier.
func Session(id string) slog.Attr {
	if len(id) > 8 {
		id = id[:8]
	}
	return slog.String(KeySession, id)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// This allows correlation of log entries without exposing PII.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "user:" + hex.EncodeToString(hash[:8])
}

// Recipients returns a slog attribute with the anonymized recipient list.
//
// Usage:
//
//	logger.Info("email sent", logging.Recipients(to))
func Recipients(emails []string) slog.Attr {
	hashed := make([]string, len(emails))
	for i, e := range emails {
		hashed[i] = AnonymizeEmail(e)
	}
	return slog.String(KeyRecipient, strings.Join(hashed, ","))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
