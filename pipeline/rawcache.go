package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"metroheat/models"
	"metroheat/parser"
)

// rawHeader is the column set for the combined raw-results file. Raw rows are
// captured before extraction, so no category columns appear here.
var rawHeader = []string{
	"address", "city", "state", "zip",
	"price", "year_built", "square_feet",
	"latitude", "longitude",
	"detail_ref", "scraped_at",
}

// RawCachePath returns the combined raw-results file for a metro.
func RawCachePath(dir, metro string) string {
	return filepath.Join(dir, metroSlug(metro)+"_raw.csv")
}

// metroSlug reduces a metro name to a filesystem-safe token.
func metroSlug(metro string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(metro) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// SaveRaw writes search-phase rows to the combined raw-results file. A later
// run can reload them instead of repeating the search phase.
func SaveRaw(path string, records []models.ListingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raw cache: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rawHeader); err != nil {
		return fmt.Errorf("write raw header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Address,
			r.City,
			r.State,
			r.ZIP,
			strconv.FormatInt(r.Price, 10),
			strconv.Itoa(r.YearBuilt),
			strconv.FormatInt(r.SquareFeet, 10),
			strconv.FormatFloat(r.Latitude, 'f', -1, 64),
			strconv.FormatFloat(r.Longitude, 'f', -1, 64),
			r.DetailRef,
			r.ScrapedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write raw row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush raw cache: %w", err)
	}
	return nil
}

// LoadRaw reloads search-phase rows from a combined raw-results file.
func LoadRaw(path string) ([]models.ListingRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw cache: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read raw header: %w", err)
	}
	if len(header) != len(rawHeader) {
		return nil, fmt.Errorf("raw cache has %d columns, want %d", len(header), len(rawHeader))
	}

	var records []models.ListingRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read raw row: %w", err)
		}

		scrapedAt, err := time.Parse(time.RFC3339, row[10])
		if err != nil {
			return nil, fmt.Errorf("parse raw scraped_at %q: %w", row[10], err)
		}
		record := models.ListingRecord{
			Address:    row[0],
			City:       row[1],
			State:      row[2],
			ZIP:        parser.NormalizeZIP(row[3]),
			Price:      parseRawInt(row[4]),
			YearBuilt:  int(parseRawInt(row[5])),
			SquareFeet: parseRawInt(row[6]),
			Latitude:   parseRawFloat(row[7]),
			Longitude:  parseRawFloat(row[8]),
			DetailRef:  row[9],
			ScrapedAt:  scrapedAt,
		}
		records = append(records, record)
	}
	return records, nil
}

func parseRawInt(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseRawFloat(raw string) float64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}
