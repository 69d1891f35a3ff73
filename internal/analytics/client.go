// Package analytics queries the GA4 Data API. Every failure path
// (transport, auth, schema mismatch) degrades to an empty row set so the
// report renders as "no data" instead of erroring.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	apiBaseURL   = "https://analyticsdata.googleapis.com/v1beta"
	oauthScope   = "https://www.googleapis.com/auth/analytics.readonly"
	defaultLimit = 10000
)

// Query describes one runReport call. Immutable per call.
type Query struct {
	Dimensions []string
	Metrics    []string
	StartDate  string // inclusive, YYYY-MM-DD
	EndDate    string // inclusive, YYYY-MM-DD
	OrderBy    string // metric name, descending when set
	Limit      int    // 0 means defaultLimit
}

// Row is one result row: dimension values by name and metric values by name.
type Row struct {
	Dims    map[string]string
	Metrics map[string]Value
}

// Client issues runReport queries against one GA4 property. The underlying
// authenticated HTTP client is built lazily on first use and reused for the
// process lifetime; a construction failure short-circuits every later call.
type Client struct {
	propertyID string
	credsFile  string
	timeout    time.Duration

	endpoint   string // overridable in tests
	once       sync.Once
	httpClient *http.Client
	initErr    error
}

// New creates a client for the given property. credentialsFile points to a
// Google service-account JSON key.
func New(propertyID, credentialsFile string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		propertyID: propertyID,
		credsFile:  credentialsFile,
		timeout:    timeout,
		endpoint:   apiBaseURL,
	}
}

func (c *Client) init() {
	if c.httpClient != nil {
		return // pre-wired, e.g. by tests
	}

	data, err := os.ReadFile(c.credsFile)
	if err != nil {
		c.initErr = fmt.Errorf("reading credentials: %w", err)
		return
	}

	creds, err := google.CredentialsFromJSON(context.Background(), data, oauthScope)
	if err != nil {
		c.initErr = fmt.Errorf("parsing credentials: %w", err)
		return
	}

	c.httpClient = &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: creds.TokenSource, Base: http.DefaultTransport},
	}
}

// Run executes a query and returns its rows. It never returns an error:
// unreachable provider, bad credentials and zero-row results all yield an
// empty slice, which callers must treat as "no data".
func (c *Client) Run(ctx context.Context, q Query) []Row {
	c.once.Do(c.init)
	if c.initErr != nil {
		log.Printf("analytics client unavailable: %v", c.initErr)
		return nil
	}
	if len(q.Metrics) == 0 || q.StartDate == "" || q.EndDate == "" || q.StartDate > q.EndDate {
		log.Printf("analytics: rejecting malformed query %+v", q)
		return nil
	}

	body, err := json.Marshal(buildRequest(q))
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/properties/%s:runReport", c.endpoint, c.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("analytics query error: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("analytics HTTP error: %d", resp.StatusCode)
		return nil
	}

	var result runReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Printf("analytics decode error: %v", err)
		return nil
	}

	return decodeRows(q, result)
}

// runReport request/response wire types (GA4 Data API v1beta).

type runReportRequest struct {
	Dimensions []nameField `json:"dimensions,omitempty"`
	Metrics    []nameField `json:"metrics,omitempty"`
	DateRanges []dateRange `json:"dateRanges"`
	OrderBys   []orderBy   `json:"orderBys,omitempty"`
	Limit      string      `json:"limit,omitempty"`
}

type nameField struct {
	Name string `json:"name"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type orderBy struct {
	Desc   bool `json:"desc"`
	Metric struct {
		MetricName string `json:"metricName"`
	} `json:"metric"`
}

type runReportResponse struct {
	DimensionHeaders []nameField `json:"dimensionHeaders"`
	MetricHeaders    []struct {
		Name string `json:"name"`
	} `json:"metricHeaders"`
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

func buildRequest(q Query) runReportRequest {
	req := runReportRequest{
		DateRanges: []dateRange{{StartDate: q.StartDate, EndDate: q.EndDate}},
	}
	for _, d := range q.Dimensions {
		req.Dimensions = append(req.Dimensions, nameField{Name: d})
	}
	for _, m := range q.Metrics {
		req.Metrics = append(req.Metrics, nameField{Name: m})
	}
	if q.OrderBy != "" {
		ob := orderBy{Desc: true}
		ob.Metric.MetricName = q.OrderBy
		req.OrderBys = append(req.OrderBys, ob)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	req.Limit = strconv.Itoa(limit)
	return req
}

func decodeRows(q Query, result runReportResponse) []Row {
	// Prefer the response headers for field names; fall back to query order.
	dimNames := q.Dimensions
	if len(result.DimensionHeaders) == len(q.Dimensions) && len(result.DimensionHeaders) > 0 {
		dimNames = make([]string, len(result.DimensionHeaders))
		for i, h := range result.DimensionHeaders {
			dimNames[i] = h.Name
		}
	}
	metNames := q.Metrics
	if len(result.MetricHeaders) == len(q.Metrics) && len(result.MetricHeaders) > 0 {
		metNames = make([]string, len(result.MetricHeaders))
		for i, h := range result.MetricHeaders {
			metNames[i] = h.Name
		}
	}

	var rows []Row
	for _, r := range result.Rows {
		if len(r.DimensionValues) != len(dimNames) || len(r.MetricValues) != len(metNames) {
			continue
		}
		row := Row{
			Dims:    make(map[string]string, len(dimNames)),
			Metrics: make(map[string]Value, len(metNames)),
		}
		for i, dv := range r.DimensionValues {
			row.Dims[dimNames[i]] = dv.Value
		}
		for i, mv := range r.MetricValues {
			row.Metrics[metNames[i]] = ParseValue(mv.Value)
		}
		rows = append(rows, row)
	}
	return rows
}
