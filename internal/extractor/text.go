package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// TruncationSuffix is appended to text cut at the length budget.
const TruncationSuffix = "... [Content truncated]"

// space mirrors Unicode-aware whitespace: ASCII space characters plus
// vertical tab, the information separators, NEL, and every Z-category rune.
const space = `[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]`

var (
	blankLines = regexp.MustCompile(`\n` + space + `*\n`)
	spaceRuns  = regexp.MustCompile(space + `+`)
)

// nodeText collects the trimmed, non-empty text nodes beneath n in document
// order and joins them with sep. Comments and other non-text nodes are
// ignored.
func nodeText(n *html.Node, sep string) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if t := strings.TrimSpace(node.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, sep)
}

// Normalize collapses paragraph breaks and then every whitespace run to a
// single space, trimming the ends.
func Normalize(text string) string {
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate keeps the first limit characters of text and appends
// TruncationSuffix when anything was cut. A non-positive limit disables it.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	cut := 0
	for i := range text {
		if cut == limit {
			return text[:i] + TruncationSuffix
		}
		cut++
	}
	return text
}
