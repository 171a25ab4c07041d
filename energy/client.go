package energy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"metroheat/config"
)

const defaultAPIBase = "https://api.eia.gov"

// PricePoint is one period of a price series.
type PricePoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
	Units  string  `json:"units"`
}

// Client fetches monthly residential price series, with a read-through file
// cache so repeated runs within a season do not re-query the API.
type Client struct {
	http     *resty.Client
	apiKey   string
	cacheDir string
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithTransport replaces the HTTP transport for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.GetClient().Transport = rt
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.http.SetBaseURL(base)
	}
}

// NewClient builds an EIA client. The API key is mandatory; runs that need
// price series must provide EIA_API_KEY.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg.EIAAPIKey == "" {
		return nil, fmt.Errorf("EIA API key is not set")
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(defaultAPIBase)
	httpClient.SetTimeout(30 * time.Second)

	c := &Client{
		http:     httpClient,
		apiKey:   cfg.EIAAPIKey,
		cacheDir: filepath.Join(cfg.CacheDir, "eia"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// route returns the API path and fixed facets for a fuel's residential series.
func route(fuel FuelType, state string) (path string, facets map[string]string, err error) {
	switch fuel {
	case Electricity:
		return "/v2/electricity/retail-sales/data/", map[string]string{
			"facets[stateid][]":  state,
			"facets[sectorid][]": "RES",
			"data[0]":            "price",
		}, nil
	case NaturalGas:
		return "/v2/natural-gas/pri/sum/data/", map[string]string{
			"facets[duoarea][]": "S" + state,
			"facets[process][]": "PRS",
			"data[0]":           "value",
		}, nil
	case HeatingOil:
		return "/v2/petroleum/pri/wfr/data/", map[string]string{
			"facets[duoarea][]": "S" + state,
			"facets[product][]": "EPD2F",
			"data[0]":           "value",
		}, nil
	case Propane:
		return "/v2/petroleum/pri/wfr/data/", map[string]string{
			"facets[duoarea][]": "S" + state,
			"facets[product][]": "EPLLPA",
			"data[0]":           "value",
		}, nil
	}
	return "", nil, fmt.Errorf("unknown fuel type %q", fuel)
}

// seriesValue tolerates the API's mixed value encodings: numbers, quoted
// numbers, and null for periods without survey data.
type seriesValue struct {
	set   bool
	value float64
}

func (v *seriesValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v.set = true
	v.value = f
	return nil
}

type apiResponse struct {
	Response struct {
		Data []struct {
			Period string      `json:"period"`
			Value  seriesValue `json:"value"`
			Units  string      `json:"units"`
		} `json:"data"`
	} `json:"response"`
	Error string `json:"error"`
}

// MonthlyPrices returns the residential price series for a fuel and state
// over [start, end]. States outside a fuel's survey coverage return an error
// up front instead of an empty API response.
func (c *Client) MonthlyPrices(ctx context.Context, fuel FuelType, state string, start, end time.Time) ([]PricePoint, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if !HasSeries(fuel, state) {
		return nil, fmt.Errorf("no %s price series for state %s", fuel, state)
	}

	cachePath := c.cachePath(fuel, state, start, end)
	if points, err := loadCached(cachePath); err == nil {
		return points, nil
	}

	path, facets, err := route(fuel, state)
	if err != nil {
		return nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("api_key", c.apiKey).
		SetQueryParam("frequency", "monthly").
		SetQueryParam("start", start.Format("2006-01")).
		SetQueryParam("end", end.Format("2006-01")).
		SetQueryParam("sort[0][column]", "period").
		SetQueryParam("sort[0][direction]", "asc")
	for k, v := range facets {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s series: %w", fuel, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("eia api status %d for %s/%s", resp.StatusCode(), fuel, state)
	}

	var decoded apiResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("decode %s series: %w", fuel, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("eia api error: %s", decoded.Error)
	}

	points := make([]PricePoint, 0, len(decoded.Response.Data))
	for _, d := range decoded.Response.Data {
		if !d.Value.set {
			continue
		}
		points = append(points, PricePoint{
			Period: d.Period,
			Value:  d.Value.value,
			Units:  d.Units,
		})
	}

	if err := saveCached(cachePath, points); err != nil {
		return points, nil
	}
	return points, nil
}

func (c *Client) cachePath(fuel FuelType, state string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		fuel, state, start.Format("2006-01"), end.Format("2006-01"))
	return filepath.Join(c.cacheDir, name)
}

func loadCached(path string) ([]PricePoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var points []PricePoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func saveCached(path string, points []PricePoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SeasonAveragePrice averages the series over a heating season and converts
// it to dollars per million BTU of delivered heat.
func (c *Client) SeasonAveragePrice(ctx context.Context, fuel FuelType, state string, seasonYear int) (float64, error) {
	start, end := HeatingSeason(seasonYear)
	points, err := c.MonthlyPrices(ctx, fuel, state, start, end)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("no %s price data for %s season %s", fuel, state, strconv.Itoa(seasonYear))
	}

	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return PricePerMMBTU(fuel, sum/float64(len(points))), nil
}
