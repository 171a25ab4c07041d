package detail

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"metroheat/amenity"
	"metroheat/parser"
)

// parsePageAmenities recovers amenity groups from listing page markup. The
// page renders each group as a titled block of entry list items; named entries
// carry their label in a child span, bare entries are plain text.
func parsePageAmenities(r io.Reader) ([]amenity.Group, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var groups []amenity.Group
	doc.Find("div.amenities-container div.amenity-group").Each(func(_ int, sel *goquery.Selection) {
		title := parser.NormalizeSpace(sel.Find(".title").First().Text())
		group := amenity.Group{Title: title}

		sel.Find("li").Each(func(_ int, li *goquery.Selection) {
			label := li.Find("span.entry-name").First()
			name := parser.NormalizeSpace(label.Text())
			name = strings.TrimSuffix(name, ":")

			full := parser.NormalizeSpace(li.Text())
			value := full
			if name != "" {
				value = parser.NormalizeSpace(strings.TrimPrefix(full, label.Text()))
				value = strings.TrimPrefix(value, ":")
				value = parser.NormalizeSpace(value)
			}
			if name == "" && value == "" {
				return
			}
			group.Entries = append(group.Entries, amenity.Entry{
				Name:   name,
				Values: splitValues(value),
			})
		})

		if len(group.Entries) > 0 {
			groups = append(groups, group)
		}
	})

	if len(groups) == 0 {
		return nil, fmt.Errorf("no amenity groups in listing page")
	}
	return groups, nil
}

// splitValues keeps a page-scraped value as a single span. The structured
// endpoints deliver values pre-split; page markup flattens them, and the
// extraction regexes work on whole fragments either way.
func splitValues(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}
