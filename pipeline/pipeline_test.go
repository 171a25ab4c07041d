package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"metroheat/amenity"
	"metroheat/config"
	"metroheat/detail"
	"metroheat/geo"
	"metroheat/listings"
	"metroheat/models"
)

func testResolver(t *testing.T) *geo.Resolver {
	t.Helper()
	r, err := geo.Parse(strings.NewReader("ZIP,METRO_NAME,STATE_ID,LSAD\n"))
	if err != nil {
		t.Fatalf("parse reference: %v", err)
	}
	return r
}

func testRunConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.CacheDir = t.TempDir()
	return cfg
}

func testRow(zip, address, ref string) models.ListingRecord {
	return models.ListingRecord{
		Address:   address,
		City:      "Testville",
		State:     "VA",
		ZIP:       zip,
		Price:     500000,
		YearBuilt: 1990,
		DetailRef: ref,
		ScrapedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string][]models.ListingRecord
	errs     map[string]error
	calls    []string
	onSearch func(zip string)
}

func (f *fakeSearcher) Search(ctx context.Context, zip string, filters *listings.Filters) ([]models.ListingRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, zip)
	f.mu.Unlock()
	if f.onSearch != nil {
		f.onSearch(zip)
	}
	if err, ok := f.errs[zip]; ok {
		return nil, err
	}
	return f.results[zip], nil
}

type fakeFetcher struct {
	groups map[string][]amenity.Group
	errs   map[string]error
}

func (f *fakeFetcher) AmenityGroups(ctx context.Context, ref string) ([]amenity.Group, error) {
	if err, ok := f.errs[ref]; ok {
		return nil, err
	}
	return f.groups[ref], nil
}

func heatingGroups(fuel string) []amenity.Group {
	return []amenity.Group{{
		Title: "Heating & Cooling",
		Entries: []amenity.Entry{
			{Name: "Heating Fuel", Values: []string{fuel}},
		},
	}}
}

func TestRunHappyPath(t *testing.T) {
	cfg := testRunConfig(t)

	searcher := &fakeSearcher{
		results: map[string][]models.ListingRecord{
			"22067": {
				testRow("22067", "1 Elm St", "/home/1"),
				testRow("22067", "2 Oak St", "/home/2"),
			},
			"33629": nil,
		},
		errs: map[string]error{
			"55424": listings.ErrTimeout{Err: errors.New("deadline")},
		},
	}
	searcher.results["22067"] = append(searcher.results["22067"],
		testRow("22067", "3 Pine St", "/home/3"))
	fetcher := &fakeFetcher{
		groups: map[string][]amenity.Group{
			"/home/1": heatingGroups("Natural Gas"),
			// detail with no heating facts at all, a confirmed no-match
			"/home/3": {{Title: "Exterior", Entries: []amenity.Entry{
				{Name: "Roof", Values: []string{"Shingle"}},
			}}},
		},
		errs: map[string]error{
			"/home/2": &detail.RefNotFoundError{Ref: "/home/2"},
		},
	}

	m := NewMetro(cfg, testResolver(t), searcher, fetcher, nil)
	report, err := m.Run(context.Background(), geo.TestMetro, soldTestFilters())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.ZIPsAttempted != 3 {
		t.Fatalf("attempted=%d, want 3", report.ZIPsAttempted)
	}
	if report.ZIPsWithData != 1 || report.ZIPsEmpty != 1 || report.ZIPsFailed != 1 {
		t.Fatalf("zip counts = %d/%d/%d, want 1/1/1",
			report.ZIPsWithData, report.ZIPsEmpty, report.ZIPsFailed)
	}
	if report.ListingsProcessed != 3 {
		t.Fatalf("processed=%d, want 3", report.ListingsProcessed)
	}
	if report.ListingsUnknown != 1 {
		t.Fatalf("unknown=%d, want 1 (failed detail fetch)", report.ListingsUnknown)
	}
	if report.ListingsNoMatch != 1 {
		t.Fatalf("no-match=%d, want 1 (detail with no heating facts)", report.ListingsNoMatch)
	}
	if got := report.ErrorsByType["timeout"]; got != 1 {
		t.Fatalf("timeout errors=%d, want 1", got)
	}
	if len(report.FailedZIPs) != 1 || report.FailedZIPs[0] != "55424" {
		t.Fatalf("failed zips=%v, want [55424]", report.FailedZIPs)
	}

	outFile := filepath.Join(cfg.OutputDir, "test", "22067.csv")
	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("output lines=%d, want header + 3 rows", len(lines))
	}
	if !strings.Contains(lines[1], "1 Elm St") || !strings.Contains(lines[1], "true") {
		t.Fatalf("first row missing data or category flag: %q", lines[1])
	}

	if _, err := os.Stat(RawCachePath(cfg.CacheDir, geo.TestMetro)); err != nil {
		t.Fatalf("combined raw results not written: %v", err)
	}
}

func TestRunFormatErrorFailsOnlyThatZIP(t *testing.T) {
	cfg := testRunConfig(t)
	searcher := &fakeSearcher{
		results: map[string][]models.ListingRecord{
			"33629": {testRow("33629", "9 Bay Ave", "/home/9")},
		},
		errs: map[string]error{
			"22067": &listings.FormatError{URL: "http://x", StatusCode: 200, Err: errors.New("missing column")},
		},
	}
	fetcher := &fakeFetcher{
		groups: map[string][]amenity.Group{"/home/9": heatingGroups("Natural Gas")},
	}

	m := NewMetro(cfg, testResolver(t), searcher, fetcher, nil)
	report, err := m.Run(context.Background(), geo.TestMetro, soldTestFilters())
	if err != nil {
		t.Fatalf("run should survive a single format error, got %v", err)
	}
	if len(searcher.calls) != 3 {
		t.Fatalf("searches=%d, want 3 (remaining zips still searched)", len(searcher.calls))
	}
	if report.ZIPsFailed != 1 || report.ErrorsByType["format"] != 1 {
		t.Fatalf("failed=%d format=%d, want 1/1", report.ZIPsFailed, report.ErrorsByType["format"])
	}
	if len(report.FailedZIPs) != 1 || report.FailedZIPs[0] != "22067" {
		t.Fatalf("failed zips=%v, want [22067]", report.FailedZIPs)
	}
	if report.ZIPsWithData != 1 {
		t.Fatalf("withData=%d, want 1", report.ZIPsWithData)
	}
}

func TestRunAbortsWhenEveryZIPFormatFails(t *testing.T) {
	cfg := testRunConfig(t)
	searcher := &fakeSearcher{
		errs: map[string]error{
			"22067": &listings.FormatError{URL: "http://x", StatusCode: 200, Err: errors.New("missing column")},
			"33629": &listings.FormatError{URL: "http://y", StatusCode: 200, Err: errors.New("missing column")},
			"55424": &listings.FormatError{URL: "http://z", StatusCode: 200, Err: errors.New("missing column")},
		},
	}

	m := NewMetro(cfg, testResolver(t), searcher, &fakeFetcher{}, nil)
	report, err := m.Run(context.Background(), geo.TestMetro, soldTestFilters())
	if err == nil {
		t.Fatalf("run should abort when every zip fails with a format error")
	}
	var format *listings.FormatError
	if !errors.As(err, &format) {
		t.Fatalf("error = %v, want wrapped FormatError", err)
	}
	if len(searcher.calls) != 3 {
		t.Fatalf("searches=%d, want 3 (abort decided after the full pass)", len(searcher.calls))
	}
	if report.ErrorsByType["format"] != 3 {
		t.Fatalf("format errors=%d, want 3", report.ErrorsByType["format"])
	}
}

func TestRunAbortsWhenEveryDetailPayloadFails(t *testing.T) {
	cfg := testRunConfig(t)
	searcher := &fakeSearcher{
		results: map[string][]models.ListingRecord{
			"22067": {
				testRow("22067", "1 Elm St", "/home/1"),
				testRow("22067", "2 Oak St", "/home/2"),
			},
		},
	}
	fetcher := &fakeFetcher{
		errs: map[string]error{
			"/home/1": &detail.PayloadError{URL: "http://x", Err: errors.New("bad json")},
			"/home/2": &detail.PayloadError{URL: "http://y", Err: errors.New("bad json")},
		},
	}

	m := NewMetro(cfg, testResolver(t), searcher, fetcher, nil)
	_, err := m.Run(context.Background(), geo.TestMetro, soldTestFilters())
	if err == nil {
		t.Fatalf("run should abort when every detail payload fails to decode")
	}
	var payload *detail.PayloadError
	if !errors.As(err, &payload) {
		t.Fatalf("error = %v, want wrapped PayloadError", err)
	}
}

func TestRunStopsAtZIPBoundaryOnCancel(t *testing.T) {
	cfg := testRunConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	searcher := &fakeSearcher{
		results: map[string][]models.ListingRecord{
			"22067": {testRow("22067", "1 Elm St", "/home/1")},
		},
		onSearch: func(zip string) { cancel() },
	}

	m := NewMetro(cfg, testResolver(t), searcher, &fakeFetcher{}, nil)
	_, err := m.Run(ctx, geo.TestMetro, soldTestFilters())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("searches=%d, want 1 after cancellation", len(searcher.calls))
	}
}

func TestRunUsesCachedSearch(t *testing.T) {
	cfg := testRunConfig(t)
	cfg.UseCachedSearch = true

	cached := []models.ListingRecord{
		testRow("22067", "1 Elm St", "/home/1"),
		testRow("33629", "9 Bay Ave", "/home/9"),
	}
	if err := SaveRaw(RawCachePath(cfg.CacheDir, geo.TestMetro), cached); err != nil {
		t.Fatalf("save raw: %v", err)
	}

	searcher := &fakeSearcher{
		onSearch: func(zip string) {
			t.Errorf("search phase ran for %s despite cached results", zip)
		},
	}
	fetcher := &fakeFetcher{
		groups: map[string][]amenity.Group{
			"/home/1": heatingGroups("Propane"),
			"/home/9": heatingGroups("Electric"),
		},
	}

	m := NewMetro(cfg, testResolver(t), searcher, fetcher, nil)
	report, err := m.Run(context.Background(), geo.TestMetro, soldTestFilters())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ListingsProcessed != 2 || report.ZIPsWithData != 2 {
		t.Fatalf("processed=%d withData=%d, want 2/2",
			report.ListingsProcessed, report.ZIPsWithData)
	}

	for _, zip := range []string{"22067", "33629"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, "test", zip+".csv")); err != nil {
			t.Fatalf("missing output for %s: %v", zip, err)
		}
	}
}

func TestRunUnknownMetro(t *testing.T) {
	cfg := testRunConfig(t)
	searcher := &fakeSearcher{}
	m := NewMetro(cfg, testResolver(t), searcher, &fakeFetcher{}, nil)
	_, err := m.Run(context.Background(), "Nowhereville, ZZ", soldTestFilters())
	if err == nil || !strings.Contains(err.Error(), "no ZIP codes") {
		t.Fatalf("error = %v, want unknown metro failure", err)
	}
	if len(searcher.calls) != 0 {
		t.Fatalf("searches=%d, want 0 for an unknown metro", len(searcher.calls))
	}
}

func TestMetroSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hartford-East Hartford-Middletown, CT", "hartford-east-hartford-middletown-ct"},
		{"TEST", "test"},
		{"  Tampa--St. Petersburg  ", "tampa-st-petersburg"},
	}
	for _, tt := range tests {
		if got := metroSlug(tt.in); got != tt.want {
			t.Fatalf("metroSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func soldTestFilters() *listings.Filters {
	return &listings.Filters{
		Sort:          listings.SortMostRecentlySold,
		PropertyTypes: []listings.PropertyType{listings.PropertyHouse},
		Scope:         listings.Sold(listings.SoldLast5Years),
	}
}
