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

const tavilyURL = "https://api.tavily.com/search"

// Tavily calls the Tavily search API with raw page content enabled.
type Tavily struct {
	APIKey   string
	endpoint string
	client   *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string) *Tavily {
	return &Tavily{APIKey: apiKey, endpoint: tavilyURL, client: &http.Client{Timeout: 30 * time.Second}}
}

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, req Request) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	body := map[string]any{
		"query":               req.Query,
		"search_depth":        "advanced",
		"include_raw_content": true,
	}
	if req.Limit > 0 {
		body["max_results"] = req.Limit
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to read response: %w", err)
	}
	if err := checkStatus("tavily", resp, respBody); err != nil {
		return nil, err
	}

	var response struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("tavily: failed to parse response: %w", err)
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: firstNonEmpty(r.RawContent, r.Content)})
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}
	}
	return results, nil
}
