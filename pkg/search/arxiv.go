package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const arxivURL = "https://export.arxiv.org/api/query"

// arxivEntry holds one Atom entry of the arXiv feed.
type arxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// Arxiv searches paper abstracts through the public arXiv API.
type Arxiv struct {
	endpoint string
	client   *http.Client
}

// NewArxiv constructs an arXiv search provider.
func NewArxiv() *Arxiv {
	return &Arxiv{endpoint: arxivURL, client: &http.Client{Timeout: 30 * time.Second}}
}

// Search queries the arXiv API; content is the abstract.
func (a *Arxiv) Search(ctx context.Context, req Request) ([]Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+req.Query)
	params.Add("max_results", strconv.Itoa(limit))
	params.Add("start", "0")
	apiURL := a.endpoint + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to create request: %w", err)
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: failed to read response body: %w", err)
	}
	if err := checkStatus("arxiv", resp, body); err != nil {
		return nil, err
	}
	slog.Debug("arxiv response received", "query", req.Query, "size", len(body))

	return parseArxivFeed(body)
}

func parseArxivFeed(body []byte) ([]Result, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: failed to unmarshal XML: %w", err)
	}

	results := make([]Result, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" || l.Title == "pdf" {
				link = l.Href
				break
			}
		}
		results = append(results, Result{
			Title:   collapseSpace(entry.Title),
			Content: collapseSpace(entry.Summary),
			URL:     link,
		})
	}
	return results, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
