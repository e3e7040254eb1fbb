package research

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mikeboe/deep-research/pkg/search"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// scriptedGenerator answers each task with JSON produced by respond.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   map[string]int
	prompts map[string][]string
	respond func(ctx context.Context, task, prompt string, n int) (string, error)
}

func newScriptedGenerator(respond func(ctx context.Context, task, prompt string, n int) (string, error)) *scriptedGenerator {
	return &scriptedGenerator{
		calls:   make(map[string]int),
		prompts: make(map[string][]string),
		respond: respond,
	}
}

func (g *scriptedGenerator) GenerateObject(ctx context.Context, req GenerateRequest, out any) error {
	g.mu.Lock()
	n := g.calls[req.Task]
	g.calls[req.Task]++
	g.prompts[req.Task] = append(g.prompts[req.Task], req.Prompt)
	g.mu.Unlock()

	raw, err := g.respond(ctx, req.Task, req.Prompt, n)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

func (g *scriptedGenerator) count(task string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[task]
}

func (g *scriptedGenerator) lastPrompt(task string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.prompts[task]
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// fakeProvider records each request and answers with fn.
type fakeProvider struct {
	mu       sync.Mutex
	requests []search.Request
	fn       func(req search.Request) ([]search.Result, error)
}

func (p *fakeProvider) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.fn(req)
}

func (p *fakeProvider) queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	for i, r := range p.requests {
		out[i] = r.Query
	}
	return out
}

// instantTimer fires immediately and records every requested wait.
type instantTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waits = append(t.waits, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

// recordingSleep stands in for the pacing delay.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type throttled struct{}

func (throttled) Error() string             { return "429 too many requests" }
func (throttled) RateLimited() bool         { return true }
func (throttled) RetryAfter() time.Duration { return 0 }

func newTestEngine(gen Generator, provider search.Provider, opts Options) (*Engine, *recordingSleep, *instantTimer) {
	sleeper := &recordingSleep{}
	timer := &instantTimer{}
	e := NewEngine(gen, provider, opts,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSleep(sleeper.sleep),
		WithRetryTimer(timer),
		WithTrimmer(splitter.NewTrimmer(splitter.ApproxCounter)),
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }),
	)
	return e, sleeper, timer
}

// queryIn extracts the query embedded in a summarize prompt.
func queryIn(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "<query>")
	if !ok {
		return ""
	}
	q, _, _ := strings.Cut(rest, "</query>")
	return q
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// resultsFor returns two valid results and one missing content for query.
func resultsFor(query string) []search.Result {
	slug := strings.ReplaceAll(query, " ", "-")
	return []search.Result{
		{Title: query + " A", Content: "content about " + query, URL: "https://a.example/" + slug},
		{Title: query + " B", Content: "more about " + query, URL: "https://b.example/" + slug},
		{Title: query + " C", Content: "", URL: "https://c.example/" + slug},
	}
}
