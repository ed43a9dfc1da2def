package fetcher

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GoqueryParser is a Parser implementation backed by
// github.com/PuerkitoBio/goquery. It collects the distinct set of href
// values on <a> elements that are site-relative (start with a single "/"),
// ignoring protocol-relative links ("//host/path") as those are not
// followed per the crawling rules.
type GoqueryParser struct{}

// NewGoqueryParser creates a new parser with goquery as backend.
func NewGoqueryParser() GoqueryParser {
	return GoqueryParser{}
}

// ParseLinks reads the content of an io.Reader containing HTML and
// extracts all distinct site-relative anchor links.
func (p GoqueryParser) ParseLinks(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	links := []string{}
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !isSiteRelative(href) || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links, nil
}

// isSiteRelative reports whether href is a path rooted at the site's
// domain ("/foo/bar") as opposed to protocol-relative ("//host/foo"),
// absolute ("https://host/foo") or a relative path without a leading
// slash.
func isSiteRelative(href string) bool {
	return strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//")
}

// ExtractText pulls the visible, human-readable text out of an HTML
// document, collapsing the markup away so it can be handed to the
// analyzer for lemma extraction and used to build search snippets. Text
// nodes are separated by a space, so text of adjacent elements is never
// glued into one word.
func ExtractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style,noscript").Remove()
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				b.WriteString(" ")
				return
			}
			walk(c)
		})
	}
	walk(doc.Selection)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExtractTitle pulls the document's <title> text, used by Search to build
// result listings.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
