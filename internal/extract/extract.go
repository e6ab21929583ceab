// Package extract turns rendered posting markup into plain text.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const baseNoise = "script, style, noscript, template, iframe, svg"

// Extractor pulls visible text out of HTML. The first content selector that
// matches wins; with none matching the whole body is used.
type Extractor struct {
	ContentSelectors []string
	NoiseSelectors   []string
}

// New returns an Extractor tuned for job posting pages.
func New() *Extractor {
	return &Extractor{
		ContentSelectors: PostingSelectors(),
		NoiseSelectors:   []string{"nav", "footer", "header", ".cookie-banner"},
	}
}

// PostingSelectors are the content containers commonly used by job boards.
func PostingSelectors() []string {
	return []string{
		".job-description",
		"#job-description",
		".job-details",
		".posting-content",
		"main",
		"article",
		"#content",
	}
}

// Extract returns the text of markup with one line per text block. Markup
// without visible text yields an empty string and no error.
func (e *Extractor) Extract(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(baseNoise).Remove()
	if len(e.NoiseSelectors) > 0 {
		doc.Find(strings.Join(e.NoiseSelectors, ", ")).Remove()
	}

	content := doc.Find("body")
	for _, sel := range e.ContentSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			content = found.First()
			break
		}
	}
	content.Find("br, p, div, li, h1, h2, h3, h4, h5, h6, tr, dt, dd").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: "\n"})
		}
	})

	return cleanLines(content.Text()), nil
}

func cleanLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
