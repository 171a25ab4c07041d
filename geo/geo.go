// Package geo resolves Metropolitan Statistical Area names to their
// constituent ZIP codes using a pre-joined reference table.
package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// MSALSAD is the legal/statistical area description that marks a reference
// row as belonging to a Metropolitan Statistical Area.
const MSALSAD = "Metropolitan Statistical Area"

// TestMetro is a reserved metro name that maps to a small fixed ZIP set so
// integration runs can avoid the full reference table.
const TestMetro = "TEST"

var testZIPs = []string{"22067", "33629", "55424"}

// Row is one immutable entry of the reference table.
type Row struct {
	ZIP     string // 5-digit, zero-padded
	Metro   string
	StateID string
	LSAD    string
}

// Resolver answers metro/ZIP lookups from an in-memory copy of the reference
// table. All methods are pure reads and safe for concurrent use.
type Resolver struct {
	rows      []Row
	zipSet    map[string]struct{}
	metroZIPs map[string][]string // lowercased MSA name -> sorted deduped ZIPs
	metroSts  map[string][]string
	zipMetros map[string][]string // ZIP -> MSA names, reference-table order
	canonical map[string]string   // lowercased MSA name -> display name
}

// Load reads the reference table from path. The file must carry at least the
// ZIP, METRO_NAME, STATE_ID, and LSAD columns.
func Load(path string) (*Resolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse builds a Resolver from CSV reference data.
func Parse(r io.Reader) (*Resolver, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read reference header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"ZIP", "METRO_NAME", "STATE_ID", "LSAD"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("reference table missing column %q", required)
		}
	}

	res := &Resolver{
		zipSet:    make(map[string]struct{}),
		metroZIPs: make(map[string][]string),
		metroSts:  make(map[string][]string),
		zipMetros: make(map[string][]string),
		canonical: make(map[string]string),
	}
	seen := make(map[string]struct{})

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference row: %w", err)
		}
		row := Row{
			ZIP:     padZIP(record[cols["ZIP"]]),
			Metro:   strings.TrimSpace(record[cols["METRO_NAME"]]),
			StateID: strings.TrimSpace(record[cols["STATE_ID"]]),
			LSAD:    strings.TrimSpace(record[cols["LSAD"]]),
		}
		if row.ZIP == "" || row.Metro == "" {
			continue
		}
		// Duplicate (ZIP, METRO_NAME) rows are permissible in the source
		// join; keep the first.
		key := row.ZIP + "\x00" + row.Metro
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.add(row)
	}

	for _, zips := range res.metroZIPs {
		sort.Strings(zips)
	}
	for metro, states := range res.metroSts {
		res.metroSts[metro] = dedupSorted(states)
	}
	return res, nil
}

func (r *Resolver) add(row Row) {
	r.rows = append(r.rows, row)
	r.zipSet[row.ZIP] = struct{}{}
	r.zipMetros[row.ZIP] = append(r.zipMetros[row.ZIP], row.Metro)

	if row.LSAD != MSALSAD {
		return
	}
	key := strings.ToLower(row.Metro)
	r.canonical[key] = row.Metro
	r.metroZIPs[key] = append(r.metroZIPs[key], row.ZIP)
	r.metroSts[key] = append(r.metroSts[key], row.StateID)
}

// ZIPCodesForMetro returns the deduplicated ZIP codes of the named MSA.
// Matching is case-insensitive. An unknown name yields an empty slice, never
// an error.
func (r *Resolver) ZIPCodesForMetro(name string) []string {
	if name == TestMetro {
		out := make([]string, len(testZIPs))
		copy(out, testZIPs)
		return out
	}
	zips := r.metroZIPs[strings.ToLower(strings.TrimSpace(name))]
	out := make([]string, len(zips))
	copy(out, zips)
	return out
}

// StatesForMetro returns the two-letter state codes the named MSA spans.
func (r *Resolver) StatesForMetro(name string) []string {
	states := r.metroSts[strings.ToLower(strings.TrimSpace(name))]
	out := make([]string, len(states))
	copy(out, states)
	return out
}

// IsValidZIP reports membership of zip in the reference table.
func (r *Resolver) IsValidZIP(zip string) bool {
	_, ok := r.zipSet[padZIP(zip)]
	return ok
}

// MetroForZIP returns the MSA name for zip. A ZIP spanning metro boundaries
// appears under several names; the first reference-table match is returned.
// The second result is false when the ZIP belongs to no metro.
func (r *Resolver) MetroForZIP(zip string) (string, bool) {
	metros := r.zipMetros[padZIP(zip)]
	if len(metros) == 0 {
		return "", false
	}
	return metros[0], true
}

// Metros enumerates the distinct MSA names in the reference table, sorted.
func (r *Resolver) Metros() []string {
	out := make([]string, 0, len(r.canonical))
	for _, name := range r.canonical {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// padZIP left-pads numeric ZIPs that lost their leading zeros upstream.
func padZIP(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) >= 5 {
		return zip
	}
	return strings.Repeat("0", 5-len(zip)) + zip
}

func dedupSorted(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i == 0 || values[i-1] != v {
			out = append(out, v)
		}
	}
	return out
}
