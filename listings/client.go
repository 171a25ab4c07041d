package listings

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"metroheat/config"
	"metroheat/models"
	"metroheat/parser"
)

// downloadAnchor is the page element carrying the bulk CSV export link. The
// source only renders it when the query matched at least one listing, so its
// absence on an otherwise healthy page means an empty result set.
const downloadAnchor = "a#download-and-save"

// botMarker appears in interstitial pages served instead of results when the
// anti-scraping defenses trigger without an HTTP error status.
const botMarker = "you're not a robot"

// Client issues one bulk search per ZIP code against the listings source. All
// requests flow through a single colly backend so the politeness delay applies
// across the whole run, while each Search gets a fresh collector clone so
// per-call state never leaks between ZIPs.
type Client struct {
	cfg     *config.Config
	base    *colly.Collector
	headers *headerPool
	Metrics *Metrics
}

// Option customizes a Client at construction time.
type Option func(*Client) error

// WithTransport replaces the HTTP transport. Tests use this to point the
// client at a mock round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		c.base.WithTransport(rt)
		return nil
	}
}

// WithMetrics attaches a metrics bundle. Without it the client runs unmetered.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.Metrics = m
		return nil
	}
}

// WithHeaderSeed fixes the header rotation seed for reproducible tests.
func WithHeaderSeed(seed int64) Option {
	return func(c *Client) error {
		c.headers = newHeaderPool(seed)
		return nil
	}
}

// NewClient builds a search client configured from cfg.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(cfg.SearchBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse search base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("search base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.SearchTimeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.SearchTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.MinDelay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		base:    collector,
		headers: newHeaderPool(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// searchState collects everything the per-call handlers observe. One instance
// per Search call; handlers on the clone close over it.
type searchState struct {
	downloadHref string
	pageStatus   int
	pageBody     []byte
	pageErr      error
	csvStatus    int
	csvBody      []byte
	csvErr       error
}

// Search runs the bulk query for one ZIP code and returns the surviving rows.
//
// Outcome contract:
//   - healthy page without a download link: empty slice, nil error
//   - HTTP not-found on the search page: *ZIPNotFoundError
//   - success status with content the client cannot decode: *FormatError
//   - blocked, timeout and connection failures surface as their typed errors
func (c *Client) Search(ctx context.Context, zip string, filters *Filters) ([]models.ListingRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zip = parser.NormalizeZIP(zip)
	filterPath, err := filters.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	searchURL := strings.TrimRight(c.cfg.SearchBaseURL, "/") + "/zipcode/" + zip + filterPath

	state := &searchState{}
	col := c.base.Clone()
	c.configureHandlers(ctx, col, searchURL, state)

	if err := col.Visit(searchURL); err != nil && state.pageErr == nil {
		state.pageErr = err
	}
	col.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if state.pageErr != nil || state.pageStatus >= http.StatusBadRequest {
		return nil, c.fail(zip, c.classifyPage(zip, searchURL, state))
	}

	if state.downloadHref == "" {
		if strings.Contains(strings.ToLower(string(state.pageBody)), botMarker) {
			return nil, c.fail(zip, ErrBlocked{
				StatusCode: state.pageStatus,
				Err:        fmt.Errorf("bot interstitial served for %s", searchURL),
			})
		}
		slog.Debug("zip has no listings", slog.String("zip", zip))
		c.Metrics.IncSearch("empty")
		return nil, nil
	}

	csvURL, err := resolveRef(searchURL, state.downloadHref)
	if err != nil {
		return nil, c.fail(zip, &FormatError{
			URL:        searchURL,
			StatusCode: state.pageStatus,
			BodySize:   len(state.pageBody),
			Err:        fmt.Errorf("unusable download link %q: %w", state.downloadHref, err),
		})
	}

	csvCtx := colly.NewContext()
	csvCtx.Put("phase", "csv")
	if err := col.Request(http.MethodGet, csvURL, nil, csvCtx, nil); err != nil && state.csvErr == nil {
		state.csvErr = err
	}
	col.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state.csvErr != nil || state.csvStatus >= http.StatusBadRequest {
		classified := classifyError(state.csvErr, state.csvStatus)
		if classified == nil {
			classified = fmt.Errorf("http status %d fetching %s", state.csvStatus, csvURL)
		}
		return nil, c.fail(zip, classified)
	}

	records, decodeErr := decodeResults(state.csvBody, zip, c.cfg, c.Metrics)
	if decodeErr != nil {
		return nil, c.fail(zip, &FormatError{
			URL:        csvURL,
			StatusCode: state.csvStatus,
			BodySize:   len(state.csvBody),
			Err:        decodeErr,
		})
	}

	c.Metrics.AddRows(len(records))
	if len(records) == 0 {
		c.Metrics.IncSearch("empty")
	} else {
		c.Metrics.IncSearch("ok")
	}
	slog.Debug("zip search complete",
		slog.String("zip", zip),
		slog.Int("rows", len(records)),
	)
	return records, nil
}

func (c *Client) configureHandlers(ctx context.Context, col *colly.Collector, selfURL string, state *searchState) {
	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		ua, referer := c.headers.next(selfURL)
		r.Headers.Set("User-Agent", ua)
		r.Headers.Set("Referer", referer)
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Ctx.Put("start", time.Now())
	})

	col.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		if r.Ctx.Get("phase") == "csv" {
			state.csvStatus = r.StatusCode
			state.csvBody = r.Body
			return
		}
		state.pageStatus = r.StatusCode
		state.pageBody = r.Body
	})

	col.OnError(func(r *colly.Response, err error) {
		status := 0
		phase := ""
		if r != nil {
			status = r.StatusCode
			if r.Ctx != nil {
				phase = r.Ctx.Get("phase")
			}
		}
		if phase == "csv" {
			state.csvStatus = status
			state.csvErr = err
			return
		}
		state.pageStatus = status
		state.pageErr = err
	})

	col.OnHTML(downloadAnchor, func(e *colly.HTMLElement) {
		state.downloadHref = e.Attr("href")
	})
}

// classifyPage maps a failed search-page visit to the error taxonomy. An HTTP
// not-found here means the source does not know the ZIP at all.
func (c *Client) classifyPage(zip, searchURL string, state *searchState) error {
	if state.pageStatus == http.StatusNotFound {
		return &ZIPNotFoundError{ZIP: zip, URL: searchURL}
	}
	classified := classifyError(state.pageErr, state.pageStatus)
	if classified == nil {
		classified = fmt.Errorf("http status %d from %s", state.pageStatus, searchURL)
	}
	return classified
}

// fail records metrics for a failed search and passes the error through.
func (c *Client) fail(zip string, err error) error {
	label := errorTypeLabel(err)
	c.Metrics.IncSearch("error")
	c.Metrics.IncError(label)
	slog.Warn("zip search failed",
		slog.String("zip", zip),
		slog.String("category", label),
		slog.Any("error", err),
	)
	return err
}

func resolveRef(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := b.ResolveReference(ref)
	if resolved.Host == "" {
		return "", fmt.Errorf("resolved link has no host")
	}
	return resolved.String(), nil
}
