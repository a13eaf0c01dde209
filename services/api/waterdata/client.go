// Package waterdata fetches device records from the water data API page by
// page and feeds them into a dashboard session.
package waterdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/waterwatch/dashboard/services/api/metrics"
	"github.com/waterwatch/dashboard/services/api/session"
)

// Client requests record pages from the water data API.
type Client struct {
	http      *http.Client
	base      *url.URL
	deviceIDs []string
	pageSize  int
	log       *slog.Logger
}

// NewClient builds a client for rawURL. Query parameters already present in
// rawURL are kept on every request.
func NewClient(httpClient *http.Client, rawURL string, deviceIDs []string, pageSize int, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid water data url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid water data url: %s", rawURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		http:      httpClient,
		base:      u,
		deviceIDs: deviceIDs,
		pageSize:  pageSize,
		log:       log,
	}, nil
}

// PageSize is the number of records requested per page.
func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) pageURL(offset int) string {
	u := *c.base
	q := u.Query()
	if len(c.deviceIDs) > 0 {
		q.Del("deviceIDs")
		for _, id := range c.deviceIDs {
			q.Add("deviceIDs", id)
		}
	}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage retrieves the page starting at offset.
func (c *Client) FetchPage(ctx context.Context, offset int) (session.Page, DecodeReport, error) {
	start := time.Now()
	defer func() {
		metrics.SourceLatency.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(offset), nil)
	if err != nil {
		return session.Page{}, DecodeReport{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return session.Page{}, DecodeReport{}, fmt.Errorf("request water data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.Page{}, DecodeReport{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	records, report, err := DecodeRecords(resp.Body)
	if err != nil {
		return session.Page{}, report, err
	}

	for _, e := range report.Errors {
		c.log.Warn("skipping record", "offset", offset, "err", e.Error())
	}

	return session.Page{
		Offset:  offset,
		Size:    report.Total,
		Records: records,
	}, report, nil
}
