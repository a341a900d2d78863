package rewrite

import "strings"

// diagnosticLimit is how many characters of rejected output are reported.
const diagnosticLimit = 200

// LooksLikeHTML reports whether text is non-empty and is delimited by
// '<' and '>'. It is a shape check only; the markup is not parsed.
func LooksLikeHTML(text string) bool {
	return text != "" && strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">")
}

// Diagnostic returns the first 200 characters of text, counting runes so a
// multi-byte character is never split.
func Diagnostic(text string) string {
	runes := []rune(text)
	if len(runes) <= diagnosticLimit {
		return text
	}
	return string(runes[:diagnosticLimit])
}
