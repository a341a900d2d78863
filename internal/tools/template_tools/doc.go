// Package template_tools exposes the template operations as MCP tools.
//
// template_list, template_get and template_check are always registered.
// template_rewrite writes a new file and template_send delivers email, so
// both are only registered when the server runs with write access enabled.
package template_tools
