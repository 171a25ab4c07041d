package listings

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"metroheat/config"
	"metroheat/models"
	"metroheat/parser"
)

// Export columns the decoder depends on. The URL column header carries a long
// advisory suffix on the wire, so it is matched by prefix instead.
const (
	colPropertyType = "PROPERTY TYPE"
	colAddress      = "ADDRESS"
	colCity         = "CITY"
	colState        = "STATE OR PROVINCE"
	colZIP          = "ZIP OR POSTAL CODE"
	colPrice        = "PRICE"
	colSquareFeet   = "SQUARE FEET"
	colYearBuilt    = "YEAR BUILT"
	colLatitude     = "LATITUDE"
	colLongitude    = "LONGITUDE"
	colURLPrefix    = "URL"
)

// decodeResults parses a bulk CSV export into listing records, filtering to
// the configured property type and capping the row count. Any structural
// problem (missing columns, ragged rows, unreadable CSV) is returned as a
// plain error for the caller to wrap as a FormatError.
func decodeResults(body []byte, zip string, cfg *config.Config, metrics *Metrics) ([]models.ListingRecord, error) {
	reader := csv.NewReader(bytes.NewReader(body))

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var records []models.ListingRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		if !strings.EqualFold(strings.TrimSpace(row[index.propertyType]), cfg.PropertyTypeTarget) {
			metrics.IncDropped("property_type")
			continue
		}

		record := models.ListingRecord{
			Address:    parser.NormalizeSpace(row[index.address]),
			City:       parser.NormalizeSpace(row[index.city]),
			State:      strings.TrimSpace(row[index.state]),
			ZIP:        normalizeRowZIP(row[index.zip], zip),
			Price:      parseMoney(row[index.price]),
			YearBuilt:  int(parseNumber(row[index.yearBuilt])),
			SquareFeet: parseNumber(row[index.squareFeet]),
			Latitude:   parseFloat(row[index.latitude]),
			Longitude:  parseFloat(row[index.longitude]),
			DetailRef:  detailRef(row[index.url]),
			ScrapedAt:  now,
		}
		if err := parser.ValidateListing(&record); err != nil {
			metrics.IncDropped("invalid")
			continue
		}

		records = append(records, record)
		if len(records) >= cfg.MaxResultsPerZIP {
			break
		}
	}
	return records, nil
}

type columnIndex struct {
	propertyType int
	address      int
	city         int
	state        int
	zip          int
	price        int
	squareFeet   int
	yearBuilt    int
	latitude     int
	longitude    int
	url          int
}

func indexHeader(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	urlCol := -1
	for i, name := range header {
		name = strings.ToUpper(strings.TrimSpace(name))
		positions[name] = i
		if urlCol < 0 && strings.HasPrefix(name, colURLPrefix) {
			urlCol = i
		}
	}

	index := columnIndex{url: urlCol}
	for _, want := range []struct {
		name string
		dst  *int
	}{
		{colPropertyType, &index.propertyType},
		{colAddress, &index.address},
		{colCity, &index.city},
		{colState, &index.state},
		{colZIP, &index.zip},
		{colPrice, &index.price},
		{colSquareFeet, &index.squareFeet},
		{colYearBuilt, &index.yearBuilt},
		{colLatitude, &index.latitude},
		{colLongitude, &index.longitude},
	} {
		pos, ok := positions[want.name]
		if !ok {
			return columnIndex{}, fmt.Errorf("missing column %q", want.name)
		}
		*want.dst = pos
	}
	if index.url < 0 {
		return columnIndex{}, fmt.Errorf("missing column %q", colURLPrefix)
	}
	return index, nil
}

// normalizeRowZIP prefers the row's own ZIP, falling back to the queried ZIP
// when the row left it blank. ZIP+4 values lose their extension.
func normalizeRowZIP(raw, queried string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return queried
	}
	if i := strings.IndexByte(raw, '-'); i >= 0 {
		raw = raw[:i]
	}
	return parser.NormalizeZIP(raw)
}

// parseMoney reads a price cell, tolerating currency symbols and thousands
// separators. Blank or malformed cells decode to zero rather than failing the
// whole export.
func parseMoney(raw string) int64 {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return 0
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseNumber(raw string) int64 {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

// detailRef reduces a listing URL to its path so the detail client can attach
// its own host. Unparseable values pass through for validation to reject.
func detailRef(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
