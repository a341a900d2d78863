// Package cmd implements the command-line interface for templatemail.
//
// This package provides the following commands:
//   - serve: Start the web UI for browsing, editing and sending templates
//   - mcp: Serve the template tools over MCP stdio
//   - templates list|show: Inspect the templates folder
//   - rewrite: Apply an AI edit to a template and save it as a copy
//   - send: Send a template through the webhook or Gmail
//   - auth: Run the Gmail consent flow
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
