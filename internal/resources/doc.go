// Package resources exposes the templates folder as MCP resources.
//
// templates://index returns the folder state and template names as JSON;
// template://{name} returns the raw HTML of one template. Resources are
// read-only, so they are registered regardless of write access.
package resources
