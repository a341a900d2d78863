// Package common provides shared utilities for the MCP tool implementations:
// argument helpers and the instrumentation wrapper every tool handler goes
// through.
package common
