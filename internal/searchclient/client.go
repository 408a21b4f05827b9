// Package searchclient calls the remote news search endpoint.
package searchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DeafMist/region-news-map/internal/models"
)

// SearchPath is the endpoint path appended to the base URL.
const SearchPath = "/search_news"

// Client issues region/category searches.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (scheme and host, optional path prefix).
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchNews fetches articles for region and category.
//
// A payload carrying an error message is returned as-is with a nil error, whatever
// the status code, so callers can show the endpoint's own wording.
func (c *Client) SearchNews(ctx context.Context, region, category string) (*models.SearchResponse, error) {
	q := url.Values{}
	q.Set("region", region)
	q.Set("category", category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+SearchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search news: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var payload models.SearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("search news: unexpected status %s", res.Status)
		}
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if payload.Error != "" {
		return &payload, nil
	}
	if res.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("search news: unexpected status %s", res.Status)
	}
	return &payload, nil
}
