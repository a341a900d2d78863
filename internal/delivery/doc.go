// Package delivery sends a template email through one of the supported
// channels.
//
// The Gmail channel sends a multipart/alternative message from the
// authorized account. The webhook channel posts {to, subject, body} to a
// workflow endpoint that performs the send. Both are validated the same way
// and recorded in metrics and the audit log, so the web UI, the CLI and the
// MCP tools behave identically.
package delivery
