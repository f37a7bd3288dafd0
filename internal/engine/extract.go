package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractAnswer pulls the visible answer text out of a serialized page. The
// last element matching the selector wins: the page keeps earlier exchanges
// in the DOM and the newest answer renders last. Returns "" when nothing
// matches or the document cannot be parsed.
func ExtractAnswer(html, selector string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	node := sel.Last().Clone()
	// Scripts and styles serialize into Text(); drop them first.
	node.Find("script, style, noscript").Remove()
	return normalizeWhitespace(node.Text())
}

// normalizeWhitespace collapses runs of whitespace inside lines and trims
// the result while preserving paragraph breaks.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
