package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mferrill/workherald/internal/workmeta"
)

// ErrNoBody is returned when the document carries no parseable body at all.
// Missing individual fields never produce an error, only warnings.
var ErrNoBody = errors.New("document has no body")

const dateLayout = "2006-01-02"

// Extract scans all label/value pairs in the rendered document and maps them
// to canonical fields. Pairs inside input forms are skipped as UI chrome.
// Unmapped labels are preserved under Unknown and recorded as warnings; a
// label with no following value is dropped with a warning.
func Extract(html string) (*workmeta.ExtractedMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	body := doc.Find("body")
	if body.Length() == 0 || (body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "") {
		return nil, ErrNoBody
	}

	meta := &workmeta.ExtractedMetadata{
		Fields:    make(map[string]string),
		TagFields: make(map[string][]string),
		Unknown:   make(map[string]string),
	}

	meta.Title = collapseWhitespace(doc.Find("h2.title").First().Text())
	doc.Find("h3.byline a[rel='author']").Each(func(_ int, a *goquery.Selection) {
		if name := collapseWhitespace(a.Text()); name != "" {
			meta.Authors = append(meta.Authors, name)
		}
	})
	meta.Summary = collapseWhitespace(doc.Find("div.summary blockquote").First().Text())

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		if dl.HasClass("stats") || insideForm(dl) {
			return
		}
		scanPairs(dl, meta, func(label string, dd *goquery.Selection) {
			recordPair(meta, label, dd)
		})
	})

	// The statistics block may legitimately appear more than once in a
	// rendered document; repeated blocks are reconciled rather than summed.
	doc.Find("dl.stats").Each(func(_ int, dl *goquery.Selection) {
		if insideForm(dl) {
			return
		}
		scanPairs(dl, meta, func(label string, dd *goquery.Selection) {
			recordStatsPair(meta, label, dd)
		})
	})

	return meta, nil
}

func insideForm(s *goquery.Selection) bool {
	return s.ParentsFiltered("form").Length() > 0
}

// scanPairs walks a definition list in document order, pairing each dt with
// the dd that follows it. Two labels in a row drop the earlier label with a
// warning.
func scanPairs(dl *goquery.Selection, meta *workmeta.ExtractedMetadata, handle func(string, *goquery.Selection)) {
	pending := ""
	dl.ChildrenFiltered("dt,dd").Each(func(_ int, node *goquery.Selection) {
		if node.Is("dt") {
			if pending != "" {
				meta.Warnings = append(meta.Warnings, fmt.Sprintf("label %q has no value", pending))
			}
			pending = collapseWhitespace(node.Text())
			return
		}
		if pending == "" {
			return
		}
		handle(pending, node)
		pending = ""
	})
	if pending != "" {
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("label %q has no value", pending))
	}
}

func recordPair(meta *workmeta.ExtractedMetadata, label string, dd *goquery.Selection) {
	if normalizeLabel(label) == statsContainerLabel {
		return
	}
	spec, known := Lookup(label)
	if !known {
		recordUnknown(meta, label, dd)
		return
	}
	if spec.Kind == KindTags {
		meta.TagFields[spec.Key] = tagList(dd)
		return
	}
	meta.Fields[spec.Key] = collapseWhitespace(dd.Text())
}

// recordStatsPair applies the repeated-block conflict policy: numeric and
// text fields keep the most recently seen value, date fields keep the more
// recent date, tag lists always re-derive from the current block.
func recordStatsPair(meta *workmeta.ExtractedMetadata, label string, dd *goquery.Selection) {
	spec, known := Lookup(label)
	if !known {
		recordUnknown(meta, label, dd)
		return
	}
	if spec.Kind == KindTags {
		meta.TagFields[spec.Key] = tagList(dd)
		return
	}
	value := collapseWhitespace(dd.Text())
	if spec.Kind == KindDate {
		meta.Fields[spec.Key] = laterDate(meta.Fields[spec.Key], value)
		return
	}
	meta.Fields[spec.Key] = value
}

func recordUnknown(meta *workmeta.ExtractedMetadata, label string, dd *goquery.Selection) {
	key := strings.TrimSuffix(strings.TrimSpace(label), ":")
	meta.Unknown[key] = collapseWhitespace(dd.Text())
	meta.Warnings = append(meta.Warnings, fmt.Sprintf("unknown label %q", key))
}

func laterDate(existing, incoming string) string {
	if existing == "" {
		return incoming
	}
	prev, errPrev := time.Parse(dateLayout, existing)
	next, errNext := time.Parse(dateLayout, incoming)
	if errPrev != nil || errNext != nil {
		return incoming
	}
	if next.Before(prev) {
		return existing
	}
	return incoming
}

// tagList extracts an ordered list of tag strings from a value node.
// Document order is preserved and duplicates are allowed since the source
// may legitimately repeat a tag.
func tagList(dd *goquery.Selection) []string {
	var tags []string
	nodes := dd.Find("a.tag")
	if nodes.Length() == 0 {
		nodes = dd.Find("li")
	}
	if nodes.Length() > 0 {
		nodes.Each(func(_ int, n *goquery.Selection) {
			if tag := collapseWhitespace(n.Text()); tag != "" {
				tags = append(tags, tag)
			}
		})
		return tags
	}
	for _, part := range strings.Split(dd.Text(), ",") {
		if tag := collapseWhitespace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
