// Package websearch proxies queries to an external web-search provider and
// normalizes its responses.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyQuery is returned when the search term is blank.
var ErrEmptyQuery = errors.New("websearch: query must be a non-empty string")

// Result is a single hit from the provider, passed through verbatim.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Response is the normalized search envelope.
type Response struct {
	Results []Result `json:"results"`
	Timing  int64    `json:"timing"`
	Total   int      `json:"total"`
	Term    string   `json:"term"`
}

// Client talks to the search provider over JSON HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether a provider endpoint has been set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// providerResponse mirrors the provider's wire format.
type providerResponse struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
}

// Search forwards the query to the provider and returns its result list with
// timing metadata. count caps the number of results (0 = provider default).
func (c *Client) Search(ctx context.Context, query string, count int) (Response, error) {
	term := strings.TrimSpace(query)
	if term == "" {
		return Response{}, ErrEmptyQuery
	}
	if !c.Configured() {
		return Response{}, errors.New("websearch: provider not configured")
	}

	params := url.Values{}
	params.Set("q", term)
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Response{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("search provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Response{}, fmt.Errorf("decode provider response: %w", err)
	}

	results := pr.Results
	if results == nil {
		results = []Result{}
	}
	total := pr.Total
	if total == 0 {
		total = len(results)
	}

	return Response{
		Results: results,
		Timing:  time.Since(start).Milliseconds(),
		Total:   total,
		Term:    term,
	}, nil
}
