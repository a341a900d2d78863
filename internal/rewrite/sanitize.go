package rewrite

import "strings"

// fence is one code-fence shape a model may wrap its answer in.
type fence struct {
	open  string
	close string
}

// fences are tried in order; the first whose markers surround the text wins.
var fences = []fence{
	{open: "```html\n", close: "\n```"},
	{open: "```html", close: "```"},
	{open: "```", close: "```"},
}

// Sanitize strips a single surrounding code fence from a model response.
// Text without a fence is returned trimmed and otherwise unchanged. When the
// opening and closing markers overlap, as in a bare "```", nothing is left.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	for _, f := range fences {
		if !strings.HasPrefix(text, f.open) || !strings.HasSuffix(text, f.close) {
			continue
		}
		start, end := len(f.open), len(text)-len(f.close)
		if end <= start {
			return ""
		}
		return strings.TrimSpace(text[start:end])
	}
	return text
}
