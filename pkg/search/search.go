// Package search provides web search providers returning scraped page content.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Result is one item of a provider response. Content may be empty.
type Result struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Request describes a single search.
type Request struct {
	Query   string
	Timeout time.Duration
	Limit   int
	Format  string
}

// Provider executes a query and returns results in ranking order.
type Provider interface {
	Search(ctx context.Context, req Request) ([]Result, error)
}

// RateLimitError is returned when a provider answers with HTTP 429.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Wait       time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("%s: rate limited (status %d, retry after %s)", e.Provider, e.StatusCode, e.Wait)
	}
	return fmt.Sprintf("%s: rate limited (status %d)", e.Provider, e.StatusCode)
}

func (e *RateLimitError) RateLimited() bool { return true }

func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// StatusError is returned for any other non-200 response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Body)
}

// checkStatus converts a non-200 response into a typed error.
func checkStatus(provider string, resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Wait:       parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: truncate(string(body), 300)}
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// New returns the provider registered under name.
func New(name string, opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "firecrawl":
		return NewFirecrawl(opts.FirecrawlApiKey, opts.FirecrawlBaseURL), nil
	case "tavily":
		return NewTavily(opts.TavilyApiKey), nil
	case "arxiv":
		return NewArxiv(), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", name)
	}
}

// Options carries the credentials New needs.
type Options struct {
	FirecrawlApiKey  string
	FirecrawlBaseURL string
	TavilyApiKey     string
}
