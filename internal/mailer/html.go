package mailer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText reduces an HTML email body to readable plain text: scripts,
// styles, and layout chrome are stripped, block elements become lines. If the
// input cannot be parsed it is returned unchanged.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, head, nav, footer, iframe").Remove()

	// Blocks that do not nest inside each other, so their text is never
	// emitted twice. Inline markup (b, a, span) stays part of the text.
	var b strings.Builder
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, td, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	})

	out := strings.TrimSpace(b.String())
	if out == "" {
		// No block structure; fall back to the flattened document text.
		out = strings.TrimSpace(doc.Text())
	}
	return collapseBlankLines(out)
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
