// Package rewrite turns an HTML template and a natural-language instruction
// into an edited template using a text generation backend.
//
// The pipeline is: build the prompt, generate, strip code fences from the
// response, check that what is left looks like HTML, then persist it as a
// new template. Rejected output is never written.
package rewrite

import "strings"

// systemPreamble constrains the model to textual edits of the given markup.
const systemPreamble = "You are an expert HTML editor. Your task is to modify only the textual content " +
	"within the existing HTML structure based on the user's request. Preserve all HTML tags, " +
	"attributes, and the overall layout. Do not add new HTML elements unless explicitly asked. " +
	"Do not remove existing elements unless asked. Only output the complete, raw, modified HTML " +
	"content. No explanations, no apologies, just the HTML."

// BuildPrompt composes the full prompt for one rewrite request.
func BuildPrompt(original, instruction string) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\n")
	sb.WriteString("Given the following HTML template:\n\n```html\n")
	sb.WriteString(original)
	sb.WriteString("\n```\n\nPlease apply the following changes: ")
	sb.WriteString(instruction)
	sb.WriteString("\n\nRemember to only output the full, raw, modified HTML content.")
	return sb.String()
}
