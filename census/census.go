// Package census wraps the ACS 5-year API for ZCTA-level tables, most
// importantly the house-heating-fuel table used to sanity check collected
// fuel distributions.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"metroheat/config"
)

const defaultAPIBase = "https://api.census.gov"

// HeatingFuelTable is the ACS table for house heating fuel.
const HeatingFuelTable = "B25040"

// Table holds one ACS table for every ZCTA, keyed by ZCTA.
type Table struct {
	Variables []string            `json:"variables"`
	Rows      map[string][]string `json:"rows"`
}

// Value returns the cell for a ZCTA and variable ID.
func (t *Table) Value(zcta, variable string) (string, bool) {
	row, ok := t.Rows[zcta]
	if !ok {
		return "", false
	}
	for i, v := range t.Variables {
		if v == variable && i < len(row) {
			return row[i], true
		}
	}
	return "", false
}

// Client fetches ACS tables with two cache tiers: an in-process LRU for
// repeated lookups within a run, and a file cache shared across runs. Tables
// for a published year never change, so neither tier expires.
type Client struct {
	http     *resty.Client
	apiKey   string
	cacheDir string
	tables   *lru.Cache[string, *Table]
	labels   *lru.Cache[string, map[string]string]
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithTransport replaces the HTTP transport for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.GetClient().Transport = rt
	}
}

// NewClient builds a census client. The API key is mandatory; keyless access
// is throttled too aggressively for a metro-sized run.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg.CensusAPIKey == "" {
		return nil, fmt.Errorf("census API key is not set")
	}

	tables, err := lru.New[string, *Table](8)
	if err != nil {
		return nil, err
	}
	labels, err := lru.New[string, map[string]string](8)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(defaultAPIBase)
	httpClient.SetTimeout(60 * time.Second)

	c := &Client{
		http:     httpClient,
		apiKey:   cfg.CensusAPIKey,
		cacheDir: filepath.Join(cfg.CacheDir, "census"),
		tables:   tables,
		labels:   labels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Table returns an ACS table for all ZCTAs in a year.
func (c *Client) Table(ctx context.Context, table string, year int) (*Table, error) {
	key := fmt.Sprintf("%s_%d", table, year)
	if cached, ok := c.tables.Get(key); ok {
		return cached, nil
	}

	cachePath := filepath.Join(c.cacheDir, key+".json")
	if data, err := os.ReadFile(cachePath); err == nil {
		var t Table
		if err := json.Unmarshal(data, &t); err == nil {
			c.tables.Add(key, &t)
			return &t, nil
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("get", fmt.Sprintf("group(%s)", table)).
		SetQueryParam("for", "zip code tabulation area:*").
		SetQueryParam("key", c.apiKey).
		Get(fmt.Sprintf("/data/%d/acs/acs5", year))
	if err != nil {
		return nil, fmt.Errorf("fetch acs table %s: %w", table, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("census api status %d for table %s year %d", resp.StatusCode(), table, year)
	}

	parsed, err := parseTable(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse acs table %s: %w", table, err)
	}

	c.tables.Add(key, parsed)
	c.saveFile(cachePath, parsed)
	return parsed, nil
}

// parseTable converts the API's array-of-arrays response into a Table keyed
// by ZCTA.
func parseTable(body []byte) (*Table, error) {
	var raw [][]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("empty response")
	}

	header := raw[0]
	zctaCol := -1
	for i, name := range header {
		if strings.EqualFold(name, "zip code tabulation area") {
			zctaCol = i
		}
	}
	if zctaCol < 0 {
		return nil, fmt.Errorf("response has no ZCTA column")
	}

	t := &Table{
		Variables: header,
		Rows:      make(map[string][]string, len(raw)-1),
	}
	for _, row := range raw[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("ragged row (%d cells, header has %d)", len(row), len(header))
		}
		t.Rows[row[zctaCol]] = row
	}
	return t, nil
}

// Labels returns human-readable labels per variable ID for a table, with the
// API's "Estimate!!Total:!!" scaffolding stripped.
func (c *Client) Labels(ctx context.Context, table string, year int) (map[string]string, error) {
	key := fmt.Sprintf("%s_%d_labels", table, year)
	if cached, ok := c.labels.Get(key); ok {
		return cached, nil
	}

	cachePath := filepath.Join(c.cacheDir, key+".json")
	if data, err := os.ReadFile(cachePath); err == nil {
		var labels map[string]string
		if err := json.Unmarshal(data, &labels); err == nil {
			c.labels.Add(key, labels)
			return labels, nil
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		Get(fmt.Sprintf("/data/%d/acs/acs5/groups/%s.json", year, table))
	if err != nil {
		return nil, fmt.Errorf("fetch acs labels for %s: %w", table, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("census api status %d for %s labels", resp.StatusCode(), table)
	}

	var decoded struct {
		Variables map[string]struct {
			Label string `json:"label"`
		} `json:"variables"`
	}
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("decode acs labels for %s: %w", table, err)
	}

	labels := make(map[string]string, len(decoded.Variables))
	for id, v := range decoded.Variables {
		labels[id] = cleanLabel(v.Label)
	}

	c.labels.Add(key, labels)
	c.saveFile(cachePath, labels)
	return labels, nil
}

func cleanLabel(label string) string {
	label = strings.TrimPrefix(label, "Estimate!!")
	label = strings.TrimPrefix(label, "Total:!!")
	label = strings.ReplaceAll(label, "!!", " ")
	return strings.TrimSuffix(strings.TrimSpace(label), ":")
}

func (c *Client) saveFile(path string, v any) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	// Cache writes are best effort; a failed write costs a refetch next run.
	_ = os.WriteFile(path, data, 0o644)
}
