package executor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Text that does not parse is returned unchanged.
func stripHTML(text string) string {
	if !strings.ContainsRune(text, '<') {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
