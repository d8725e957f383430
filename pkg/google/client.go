// Package google provides a client for the Google Custom Search JSON API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the response from a Custom Search query.
type SearchResponse struct {
	Items []Item `json:"items"`
}

// Item is one search hit. Image is set for image searches.
type Item struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	DisplayLink string     `json:"displayLink"`
	Snippet     string     `json:"snippet"`
	Mime        string     `json:"mime,omitempty"`
	Image       *ImageInfo `json:"image,omitempty"`
}

// ImageInfo holds the dimensions and source page of an image hit.
type ImageInfo struct {
	ContextLink string `json:"contextLink"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// APIError is returned for non-200 responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// SearchOption configures a single query.
type SearchOption func(url.Values)

// WithSearchType sets searchType (only "image" is meaningful).
func WithSearchType(t string) SearchOption {
	return func(v url.Values) { v.Set("searchType", t) }
}

// WithSiteSearch restricts results to a site.
func WithSiteSearch(site string) SearchOption {
	return func(v url.Values) { v.Set("siteSearch", site) }
}

// WithNum sets the number of results, 1 to 10.
func WithNum(n int) SearchOption {
	return func(v url.Values) {
		if n < 1 {
			n = 1
		}
		if n > 10 {
			n = 10
		}
		v.Set("num", strconv.Itoa(n))
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	cx      string
	baseURL string
	http    *http.Client
}

// NewClient creates a Custom Search client for the search engine cx.
func NewClient(apiKey, cx string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.cx)
	params.Set("q", query)
	for _, o := range opts {
		o(params)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
