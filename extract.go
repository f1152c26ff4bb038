package enricher

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docutag/enricher/models"
)

const (
	// contentRegionSelector is tried when the document has no <main> landmark
	contentRegionSelector = "div.content, div.main, div.article"
	// boilerplateSelector matches sub-regions stripped from the content region
	boilerplateSelector = "nav, header, footer, .navigation, .menu, .sidebar"
	// textSelector matches the elements whose text forms the content blob
	textSelector = "p, h1, h2, h3, h4, h5, h6"

	paragraphSeparator = "\n\n"
)

// Extracted holds the fields pulled out of a fetched HTML page
type Extracted struct {
	Title           string
	H1              string
	MetaDescription string
	TextContent     string
}

// Extract parses HTML and pulls out the title, first heading, meta
// description and main-content text. Missing fields are set to models.NotFound.
func Extract(r io.Reader) (*Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return extractDocument(doc), nil
}

// ExtractString is Extract over an in-memory document
func ExtractString(html string) (*Extracted, error) {
	return Extract(strings.NewReader(html))
}

func extractDocument(doc *goquery.Document) *Extracted {
	return &Extracted{
		Title:           firstText(doc.Find("title")),
		H1:              firstText(doc.Find("h1")),
		MetaDescription: metaDescription(doc),
		TextContent:     mainText(doc),
	}
}

func firstText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return models.NotFound
	}
	return strings.TrimSpace(sel.First().Text())
}

func metaDescription(doc *goquery.Document) string {
	content, ok := doc.Find(`meta[name="description"]`).First().Attr("content")
	if !ok {
		return models.NotFound
	}
	return content
}

// mainText joins the text of every paragraph and heading inside the main
// content region, or inside the whole document when no region is found.
func mainText(doc *goquery.Document) string {
	region := doc.Find("main").First()
	if region.Length() == 0 {
		region = doc.Find(contentRegionSelector).First()
	}

	var elements *goquery.Selection
	if region.Length() > 0 {
		// Work on a copy so the parsed document stays intact
		working := region.Clone()
		working.Find(boilerplateSelector).Remove()
		elements = working.Find(textSelector)
	} else {
		elements = doc.Find(textSelector)
	}

	parts := make([]string, 0, elements.Length())
	elements.Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(s.Text()))
	})
	return strings.Join(parts, paragraphSeparator)
}
