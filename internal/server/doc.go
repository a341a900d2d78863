// Package server provides the web UI, its JSON API and the shared
// dependencies used by every templatemail surface.
//
// # Key Components
//
// ServerContext wires the template store, the rewrite pipeline, the
// delivery service and the Gmail authenticator from the configuration.
// The web UI, the MCP tools and the CLI all operate through it.
//
// WebServer serves the single page UI from an embedded file and the JSON
// API behind it:
//   - GET  /api/status           configuration warnings and Gmail state
//   - GET  /api/templates        template names and directory notices
//   - GET  /api/templates/{name} raw template content
//   - GET  /api/session          the browser session state
//   - POST /api/session/select   load a template into the session
//   - POST /api/rewrite          apply an AI edit to the selected template
//   - POST /api/send             send the displayed HTML by webhook or Gmail
//   - GET  /auth/gmail           start the Gmail consent flow
//   - GET  /auth/callback        finish the Gmail consent flow
//
// SessionManager maps a signed cookie to a Session holding the selected
// template, the displayed HTML and the pending instruction. Idle sessions
// are expired in the background.
//
// MetricsServer exposes Prometheus metrics on a separate listener and
// HealthChecker serves /healthz, /readyz and /healthz/detailed.
package server
