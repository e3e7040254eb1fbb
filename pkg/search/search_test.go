package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikeboe/deep-research/pkg/executor"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"Empty", "", 0},
		{"Seconds", "7", 7 * time.Second},
		{"Negative seconds", "-3", 0},
		{"HTTP date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"Past HTTP date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"Garbage", "later", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFirecrawlSearch(t *testing.T) {
	var got firecrawlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s, want /v1/search", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"url":"https://a.example","title":"A","markdown":"# A body"},
			{"url":"https://b.example","title":"B","description":"b snippet"},
			{"metadata":{"title":"C","sourceURL":"https://c.example"},"markdown":"c body"}
		]}`))
	}))
	defer srv.Close()

	fc := NewFirecrawlWithClient("key", srv.URL, srv.Client())
	results, err := fc.Search(context.Background(), Request{Query: "caffeine sleep", Limit: 3, Timeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Query != "caffeine sleep" || got.Limit != 3 || got.Timeout != 30000 {
		t.Errorf("request = %+v", got)
	}
	if len(got.ScrapeOptions.Formats) != 1 || got.ScrapeOptions.Formats[0] != "markdown" {
		t.Errorf("formats = %v, want [markdown]", got.ScrapeOptions.Formats)
	}

	want := []Result{
		{Title: "A", Content: "# A body", URL: "https://a.example"},
		{Title: "B", Content: "b snippet", URL: "https://b.example"},
		{Title: "C", Content: "c body", URL: "https://c.example"},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %d, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestFirecrawlRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	fc := NewFirecrawlWithClient("key", srv.URL, srv.Client())
	_, err := fc.Search(context.Background(), Request{Query: "q"})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.RetryAfter() != 12*time.Second {
		t.Errorf("RetryAfter = %v, want 12s", rl.RetryAfter())
	}
	if !executor.IsRateLimited(err) {
		t.Error("executor should classify the error as rate limited")
	}
}

func TestFirecrawlServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	fc := NewFirecrawlWithClient("key", srv.URL, srv.Client())
	_, err := fc.Search(context.Background(), Request{Query: "q"})

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v, want StatusError 502", err)
	}
	if executor.IsRateLimited(err) {
		t.Error("502 must not be classified as rate limited")
	}
}

func TestFirecrawlMissingKey(t *testing.T) {
	if _, err := NewFirecrawl("", "").Search(context.Background(), Request{Query: "q"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestParseArxivFeed(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <title>Caffeine and
      Sleep Latency</title>
    <summary>  We study   adenosine.  </summary>
    <link href="http://arxiv.org/abs/2101.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2101.00001v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2101.00002v1</id>
    <title>No PDF</title>
    <summary>Abstract only.</summary>
  </entry>
</feed>`

	results, err := parseArxivFeed([]byte(feed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Result{
		{Title: "Caffeine and Sleep Latency", Content: "We study adenosine.", URL: "http://arxiv.org/pdf/2101.00001v1"},
		{Title: "No PDF", Content: "Abstract only.", URL: "http://arxiv.org/abs/2101.00002v1"},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %d, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"", "firecrawl", "Tavily", "arxiv"} {
		if _, err := New(name, Options{}); err != nil {
			t.Errorf("New(%q) error = %v", name, err)
		}
	}
	if _, err := New("bing", Options{}); err == nil {
		t.Error("New(bing) should fail")
	}
}

func TestTavilySearch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tvly" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a.example","content":"a snippet","raw_content":"a full page"},
			{"title":"B","url":"https://b.example","content":"b snippet"},
			{"title":"C","url":"https://c.example","content":"c snippet"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTavily("tvly")
	tv.endpoint = srv.URL
	tv.client = srv.Client()

	results, err := tv.Search(context.Background(), Request{Query: "caffeine sleep", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["query"] != "caffeine sleep" || got["max_results"] != float64(2) {
		t.Errorf("request body = %v", got)
	}
	want := []Result{
		{Title: "A", URL: "https://a.example", Content: "a full page"},
		{Title: "B", URL: "https://b.example", Content: "b snippet"},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %+v, want %d", results, len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestTavilyRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tv := NewTavily("tvly")
	tv.endpoint = srv.URL
	tv.client = srv.Client()

	if _, err := tv.Search(context.Background(), Request{Query: "q"}); !executor.IsRateLimited(err) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}
