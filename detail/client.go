// Package detail fetches per-listing detail payloads and exposes their
// amenity tables to the extraction phase.
package detail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"metroheat/amenity"
	"metroheat/config"
)

const (
	initialInfoPath  = "/stingray/api/home/details/initialInfo"
	belowTheFoldPath = "/stingray/api/home/details/belowTheFold"

	// Structured endpoints prefix their JSON bodies with this guard sequence.
	jsonGuardPrefix = "{}&&"

	botMarker = "you're not a robot"
)

// Client retrieves amenity groups for one listing at a time. Requests are
// paced by a shared rate limiter so detail fetches never burst, regardless of
// how the pipeline schedules them.
type Client struct {
	cfg     *config.Config
	http    *resty.Client
	limiter *rate.Limiter
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithTransport replaces the HTTP transport, bypassing the anti-bot wrapper.
// Tests use this to install a mock round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.GetClient().Transport = rt
	}
}

// NewClient builds a detail client configured from cfg.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(cfg.DetailBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse detail base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("detail base url must include a host")
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(cfg.DetailBaseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname()))
	httpClient.SetTimeout(cfg.DetailTimeout)

	c := &Client{
		cfg:  cfg,
		http: httpClient,
		// one request per politeness interval, burst of one
		limiter: rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
	}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
		req.SetHeader("User-Agent", browser.Random())
		return nil
	})

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type initialInfoPayload struct {
	Payload struct {
		PropertyID int64 `json:"propertyId"`
		ListingID  int64 `json:"listingId"`
	} `json:"payload"`
}

type belowTheFoldPayload struct {
	Payload struct {
		AmenitiesInfo struct {
			SuperGroups []struct {
				AmenityGroups []struct {
					GroupTitle     string `json:"groupTitle"`
					AmenityEntries []struct {
						AmenityName   string   `json:"amenityName"`
						AmenityValues []string `json:"amenityValues"`
					} `json:"amenityEntries"`
				} `json:"amenityGroups"`
			} `json:"superGroups"`
		} `json:"amenitiesInfo"`
	} `json:"payload"`
}

// AmenityGroups returns the amenity tables for one listing reference. The
// structured endpoints are tried first; an undecodable fold payload falls
// back to scraping the listing page itself.
func (c *Client) AmenityGroups(ctx context.Context, ref string) ([]amenity.Group, error) {
	propertyID, listingID, err := c.initialInfo(ctx, ref)
	if err != nil {
		return nil, err
	}

	groups, err := c.belowTheFold(ctx, propertyID, listingID)
	if err == nil {
		return groups, nil
	}
	var payloadErr *PayloadError
	if !errors.As(err, &payloadErr) {
		return nil, err
	}

	groups, htmlErr := c.pageAmenities(ctx, ref)
	if htmlErr != nil {
		return nil, fmt.Errorf("%w (html fallback: %v)", err, htmlErr)
	}
	return groups, nil
}

func (c *Client) initialInfo(ctx context.Context, ref string) (propertyID, listingID int64, err error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("path", ref).
		Get(initialInfoPath)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, 0, &RefNotFoundError{Ref: ref}
	}
	if err := checkStatus(resp); err != nil {
		return 0, 0, err
	}

	var info initialInfoPayload
	if err := decodeGuarded(resp.Body(), &info); err != nil {
		return 0, 0, &PayloadError{URL: resp.Request.URL, Err: err}
	}
	if info.Payload.PropertyID == 0 {
		return 0, 0, &PayloadError{URL: resp.Request.URL, Err: fmt.Errorf("missing property id")}
	}
	return info.Payload.PropertyID, info.Payload.ListingID, nil
}

func (c *Client) belowTheFold(ctx context.Context, propertyID, listingID int64) ([]amenity.Group, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("propertyId", strconv.FormatInt(propertyID, 10)).
		SetQueryParam("accessLevel", "1")
	if listingID != 0 {
		req.SetQueryParam("listingId", strconv.FormatInt(listingID, 10))
	}

	resp, err := req.Get(belowTheFoldPath)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var fold belowTheFoldPayload
	if err := decodeGuarded(resp.Body(), &fold); err != nil {
		return nil, &PayloadError{URL: resp.Request.URL, Err: err}
	}

	var groups []amenity.Group
	for _, super := range fold.Payload.AmenitiesInfo.SuperGroups {
		for _, g := range super.AmenityGroups {
			group := amenity.Group{Title: g.GroupTitle}
			for _, e := range g.AmenityEntries {
				group.Entries = append(group.Entries, amenity.Entry{
					Name:   e.AmenityName,
					Values: e.AmenityValues,
				})
			}
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// pageAmenities fetches the listing page and recovers amenity groups from its
// markup.
func (c *Client) pageAmenities(ctx context.Context, ref string) ([]amenity.Group, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(ref)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, &RefNotFoundError{Ref: ref}
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return parsePageAmenities(bytes.NewReader(resp.Body()))
}

func checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	if code == http.StatusForbidden || code == http.StatusTooManyRequests {
		return &BlockedError{StatusCode: code}
	}
	if code >= http.StatusBadRequest {
		return fmt.Errorf("http status %d from %s", code, resp.Request.URL)
	}
	if strings.Contains(strings.ToLower(string(resp.Body())), botMarker) {
		return &BlockedError{StatusCode: code}
	}
	return nil
}

func decodeGuarded(body []byte, dst any) error {
	body = bytes.TrimPrefix(body, []byte(jsonGuardPrefix))
	return json.Unmarshal(body, dst)
}
