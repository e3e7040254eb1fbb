package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultFirecrawlURL = "https://api.firecrawl.dev"

// Firecrawl searches the web and scrapes each hit through the Firecrawl API.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewFirecrawl constructs a Firecrawl provider. An empty baseURL selects the
// public endpoint.
func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	return NewFirecrawlWithClient(apiKey, baseURL, &http.Client{Timeout: 60 * time.Second})
}

// NewFirecrawlWithClient constructs a Firecrawl provider using the supplied HTTP client.
func NewFirecrawlWithClient(apiKey, baseURL string, client *http.Client) *Firecrawl {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultFirecrawlURL
	}
	return &Firecrawl{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type firecrawlRequest struct {
	Query         string `json:"query"`
	Limit         int    `json:"limit,omitempty"`
	Timeout       int64  `json:"timeout,omitempty"`
	ScrapeOptions struct {
		Formats []string `json:"formats"`
	} `json:"scrapeOptions"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
		Metadata    struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// Search runs a query and returns the scraped results.
func (f *Firecrawl) Search(ctx context.Context, req Request) ([]Result, error) {
	if strings.TrimSpace(f.APIKey) == "" {
		return nil, errors.New("firecrawl: API key is missing")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("firecrawl: empty query")
	}

	body := firecrawlRequest{Query: req.Query, Limit: req.Limit, Timeout: req.Timeout.Milliseconds()}
	format := req.Format
	if format == "" {
		format = "markdown"
	}
	body.ScrapeOptions.Formats = []string{format}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("firecrawl: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+f.APIKey)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: failed to read response: %w", err)
	}
	if err := checkStatus("firecrawl", resp, respBody); err != nil {
		return nil, err
	}

	var parsed firecrawlResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("firecrawl: failed to parse response: %w", err)
	}
	if !parsed.Success && parsed.Error != "" {
		return nil, fmt.Errorf("firecrawl: %s", parsed.Error)
	}

	results := make([]Result, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		r := Result{
			Title:   firstNonEmpty(item.Title, item.Metadata.Title),
			Content: firstNonEmpty(item.Markdown, item.Description),
			URL:     firstNonEmpty(item.URL, item.Metadata.SourceURL),
		}
		results = append(results, r)
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}
	}
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
