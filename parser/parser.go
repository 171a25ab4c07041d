// Package parser holds row validation and text normalization helpers used by
// the search client and the amenity extractor.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"metroheat/models"
)

var spaceRun = regexp.MustCompile(`\s+`)

// unknownRef matches placeholder detail references the source emits for rows
// it cannot link, e.g. "UNKNOWN" path segments.
var unknownRef = regexp.MustCompile(`(?i)unknown`)

// ValidateListing ensures a search row captured the fields the extraction
// phase depends on. Rows failing validation are dropped before any detail
// lookups are attempted.
func ValidateListing(l *models.ListingRecord) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if strings.TrimSpace(l.Address) == "" {
		return fmt.Errorf("listing missing address")
	}
	if strings.TrimSpace(l.ZIP) == "" {
		return fmt.Errorf("listing missing ZIP for %s", l.Address)
	}
	if strings.TrimSpace(l.DetailRef) == "" {
		return fmt.Errorf("listing missing detail reference for %s", l.Address)
	}
	if unknownRef.MatchString(l.DetailRef) {
		return fmt.Errorf("listing has unresolvable detail reference for %s", l.Address)
	}
	return nil
}

// NormalizeSpace collapses runs of whitespace to single spaces and trims the
// ends. Listing amenity spans come with erratic spacing.
func NormalizeSpace(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

// NormalizeZIP trims and left-pads a ZIP that lost leading zeros in transit.
func NormalizeZIP(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) >= 5 || zip == "" {
		return zip
	}
	return strings.Repeat("0", 5-len(zip)) + zip
}
