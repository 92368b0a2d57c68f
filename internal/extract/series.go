package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mferrill/workherald/internal/workmeta"
)

// ExtractSeries parses a rendered collection page into a series record with
// one entry per member work blurb. Member pages are not fetched; everything
// comes from the blurbs on the collection page itself.
func ExtractSeries(html string) (*workmeta.SeriesMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	body := doc.Find("body")
	if body.Length() == 0 || (body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "") {
		return nil, ErrNoBody
	}

	series := &workmeta.SeriesMetadata{
		Title:       collapseWhitespace(doc.Find("h2.heading").First().Text()),
		Description: collapseWhitespace(doc.Find("div.series blockquote").First().Text()),
	}

	doc.Find("li.work").Each(func(_ int, blurb *goquery.Selection) {
		if insideForm(blurb) {
			return
		}
		work := workmeta.SeriesWork{
			Title: collapseWhitespace(blurb.Find("h4.heading a").First().Text()),
		}
		if href, ok := blurb.Find("h4.heading a").First().Attr("href"); ok {
			work.URL = href
		}
		blurb.Find("a[rel='author']").Each(func(_ int, a *goquery.Selection) {
			if name := collapseWhitespace(a.Text()); name != "" {
				work.Authors = append(work.Authors, name)
			}
		})
		if raw := collapseWhitespace(blurb.Find("dd.words").First().Text()); raw != "" {
			if n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", "")); err == nil {
				work.Words = n
			}
		}
		if work.Title != "" {
			series.Works = append(series.Works, work)
		}
	})

	return series, nil
}
