// Package normalize turns fetched HTML or caller-supplied text into the
// bounded plain-text document that is embedded in prompts.
package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MaxChars bounds the document body, counted in characters (runes), to keep
// prompt size and cost predictable.
const MaxChars = 15000

// Inline is the provenance of text that was posted rather than fetched.
const Inline = "inline"

// boilerplate lists elements that never carry page content.
const boilerplate = "script, style, noscript, meta, link, header, footer, nav, iframe, svg, template"

// Document is a normalized, length-bounded plain-text body.
type Document struct {
	Text       string
	Provenance string
}

// Empty reports whether the document has no text. An empty document is a
// valid result, not an error.
func (d Document) Empty() bool { return d.Text == "" }

// HTML strips non-content elements from raw, flattens the remaining text
// nodes one per line and bounds the result. Unparseable markup yields an
// empty document.
func HTML(raw, provenance string) Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Document{Provenance: provenanceOr(provenance)}
	}
	doc.Find(boilerplate).Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return build(b.String(), provenance)
}

// Text collapses whitespace in plain text and bounds the result.
func Text(raw, provenance string) Document {
	return build(raw, provenance)
}

func build(text, provenance string) Document {
	return Document{
		Text:       Truncate(Collapse(text), MaxChars),
		Provenance: provenanceOr(provenance),
	}
}

func provenanceOr(p string) string {
	if p = strings.TrimSpace(p); p == "" {
		return Inline
	}
	return p
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte('\n')
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// Collapse trims every line, splits lines on runs of two spaces and joins
// the non-empty chunks with single newlines.
func Collapse(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	chunks := make([]string, 0, 64)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, phrase := range strings.Split(line, "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
