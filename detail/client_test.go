package detail

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metroheat/amenity"
	"metroheat/config"
)

const detailBaseURL = "http://detail.test"
const testRef = "/VA/Great-Falls/123-Maple-St-22067/home/111"

const initialInfoBody = `{}&&{"payload":{"propertyId":111,"listingId":9111}}`

const foldBody = `{}&&{"payload":{"amenitiesInfo":{"superGroups":[
  {"amenityGroups":[
    {"groupTitle":"Heating & Cooling","amenityEntries":[
      {"amenityName":"Heating Information","amenityValues":["Forced Air, Heat Pump(s)"]},
      {"amenityName":"Heating Fuel","amenityValues":["Natural Gas"]}
    ]},
    {"groupTitle":"Interior Features","amenityEntries":[
      {"amenityName":"","amenityValues":["Electric Baseboard"]}
    ]}
  ]},
  {"amenityGroups":[
    {"groupTitle":"Exterior Features","amenityEntries":[
      {"amenityName":"Roof","amenityValues":["Shingle"]}
    ]}
  ]}
]}}}`

const listingPage = `<html><body>
<div class="amenities-container">
  <div class="amenity-group">
    <h4 class="title">Heating &amp; Cooling</h4>
    <ul>
      <li><span class="entry-name">Heating Fuel:</span> Propane</li>
      <li>Electric   Baseboard</li>
    </ul>
  </div>
  <div class="amenity-group">
    <h4 class="title">Exterior Features</h4>
    <ul>
      <li><span class="entry-name">Roof:</span> Shingle</li>
    </ul>
  </div>
</div>
</body></html>`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DetailBaseURL = detailBaseURL
	cfg.MinDelay = time.Millisecond
	cfg.DetailTimeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, transport *httpmock.MockTransport) *Client {
	t.Helper()
	c, err := NewClient(testConfig(), WithTransport(transport))
	require.NoError(t, err)
	return c
}

func registerInitialInfo(transport *httpmock.MockTransport, body string, status int) {
	transport.RegisterResponderWithQuery(
		"GET", detailBaseURL+initialInfoPath,
		map[string]string{"path": testRef},
		httpmock.NewStringResponder(status, body),
	)
}

func registerBelowTheFold(transport *httpmock.MockTransport, body string, status int) {
	transport.RegisterResponderWithQuery(
		"GET", detailBaseURL+belowTheFoldPath,
		map[string]string{"propertyId": "111", "listingId": "9111", "accessLevel": "1"},
		httpmock.NewStringResponder(status, body),
	)
}

func TestAmenityGroupsStructured(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerInitialInfo(transport, initialInfoBody, http.StatusOK)
	registerBelowTheFold(transport, foldBody, http.StatusOK)

	c := newTestClient(t, transport)
	groups, err := c.AmenityGroups(context.Background(), testRef)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, "Heating & Cooling", groups[0].Title)
	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, "Heating Fuel", groups[0].Entries[1].Name)
	assert.Equal(t, []string{"Natural Gas"}, groups[0].Entries[1].Values)

	assert.Equal(t, "Interior Features", groups[1].Title)
	assert.False(t, groups[1].Entries[0].Named())

	assert.Equal(t, "Exterior Features", groups[2].Title)
}

func TestAmenityGroupsRefNotFound(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerInitialInfo(transport, "", http.StatusNotFound)

	c := newTestClient(t, transport)
	_, err := c.AmenityGroups(context.Background(), testRef)

	var notFound *RefNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, testRef, notFound.Ref)
}

func TestAmenityGroupsBlocked(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerInitialInfo(transport, "", http.StatusForbidden)

	c := newTestClient(t, transport)
	_, err := c.AmenityGroups(context.Background(), testRef)

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, http.StatusForbidden, blocked.StatusCode)
}

func TestAmenityGroupsBotInterstitial(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerInitialInfo(transport,
		"<html>Please verify you're not a robot.</html>", http.StatusOK)

	c := newTestClient(t, transport)
	_, err := c.AmenityGroups(context.Background(), testRef)

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
}

func TestAmenityGroupsHTMLFallback(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerInitialInfo(transport, initialInfoBody, http.StatusOK)
	registerBelowTheFold(transport, `{}&&{"payload":`, http.StatusOK)
	transport.RegisterResponder("GET", detailBaseURL+testRef,
		httpmock.NewStringResponder(http.StatusOK, listingPage))

	c := newTestClient(t, transport)
	groups, err := c.AmenityGroups(context.Background(), testRef)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "Heating & Cooling", groups[0].Title)
	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, amenity.Entry{Name: "Heating Fuel", Values: []string{"Propane"}}, groups[0].Entries[0])
	assert.Equal(t, amenity.Entry{Values: []string{"Electric Baseboard"}}, groups[0].Entries[1])
}

func TestParsePageAmenities(t *testing.T) {
	groups, err := parsePageAmenities(strings.NewReader(listingPage))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Roof", groups[1].Entries[0].Name)
	assert.Equal(t, []string{"Shingle"}, groups[1].Entries[0].Values)
}

func TestParsePageAmenitiesEmpty(t *testing.T) {
	_, err := parsePageAmenities(strings.NewReader("<html><body></body></html>"))
	require.Error(t, err)
}
