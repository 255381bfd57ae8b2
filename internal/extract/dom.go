package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DOM parses the document with goquery instead of matching raw markup.
type DOM struct {
	scanner *signatureScanner
}

// NewDOM builds a DOM extractor.
func NewDOM() *DOM {
	return &DOM{scanner: newSignatureScanner()}
}

func parse(html string) (*goquery.Document, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}

// ManifestLink returns the href of the first link whose rel includes manifest.
func (d *DOM) ManifestLink(html string) (string, bool) {
	doc, ok := parse(html)
	if !ok {
		return "", false
	}
	var href string
	doc.Find("link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		for _, token := range strings.Fields(rel) {
			if strings.EqualFold(token, "manifest") {
				href = strings.TrimSpace(s.AttrOr("href", ""))
				return href == ""
			}
		}
		return true
	})
	return href, href != ""
}

// MetaDescription prefers meta[name=description] over og:description.
func (d *DOM) MetaDescription(html string) (string, bool) {
	doc, ok := parse(html)
	if !ok {
		return "", false
	}
	var desc string
	find := func(attr, want string) {
		doc.Find("meta[" + attr + "][content]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !strings.EqualFold(strings.TrimSpace(s.AttrOr(attr, "")), want) {
				return true
			}
			desc = strings.TrimSpace(s.AttrOr("content", ""))
			return desc == ""
		})
	}
	find("name", "description")
	if desc == "" {
		find("property", "og:description")
	}
	return desc, desc != ""
}

// ServiceWorker scans inline script bodies and script src attributes only.
func (d *DOM) ServiceWorker(html string) SWDetection {
	doc, ok := parse(html)
	if !ok {
		return d.scanner.detect(html)
	}
	var b strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			b.WriteString(src)
			b.WriteByte('\n')
		}
		b.WriteString(s.Text())
		b.WriteByte('\n')
	})
	return d.scanner.detect(b.String())
}
