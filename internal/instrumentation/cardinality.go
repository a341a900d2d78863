package instrumentation

import (
	"path/filepath"
	"strings"
)

// Cardinality helpers keep user supplied values out of metric labels unless
// the operator opted in with detailed labels.

// maxTemplateLabelLength caps template names used as label values.
const maxTemplateLabelLength = 64

// TemplateLabel returns the label value to use for a template name.
// It returns "" when detailed labels are off or the name is empty, and
// strips any directory part and the ".html" extension otherwise.
//
// Example:
//
//	TemplateLabel("welcome.html", true)   // "welcome"
//	TemplateLabel("welcome.html", false)  // ""
func TemplateLabel(name string, detailed bool) string {
	if !detailed || name == "" {
		return ""
	}
	label := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if len(label) > maxTemplateLabelLength {
		label = label[:maxTemplateLabelLength]
	}
	return label
}

// RecipientDomain extracts the domain part from an email address.
// It is the only recipient detail allowed into non-audit logs.
//
// Example:
//
//	RecipientDomain("jane@example.com")  // "example.com"
//	RecipientDomain("invalid")           // "unknown"
func RecipientDomain(email string) string {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return "unknown"
}
