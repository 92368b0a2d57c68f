package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MetaDetector decides whether statically fetched HTML already carries the
// work metadata block or a full browser render is required.
type MetaDetector struct {
	minHTMLBytes int
	selectors    []string
}

// NewMetaDetector constructs a detector. A body below minBytes, or one
// missing every expected selector, needs a render.
func NewMetaDetector(minBytes int, selectors []string) *MetaDetector {
	if len(selectors) == 0 {
		selectors = []string{"dl.work", "h2.heading"}
	}
	return &MetaDetector{minHTMLBytes: minBytes, selectors: selectors}
}

// NeedsRender inspects the static HTML for signals that the metadata block
// was not served without JavaScript.
func (d *MetaDetector) NeedsRender(html string) bool {
	if d.minHTMLBytes > 0 && len(html) < d.minHTMLBytes {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	for _, selector := range d.selectors {
		if doc.Find(selector).Length() > 0 {
			return false
		}
	}
	return true
}
