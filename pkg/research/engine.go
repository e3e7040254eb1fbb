// Package research drives LLM-orchestrated web research: it plans search
// queries, summarizes what the search provider returns into learnings and
// writes the final report.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mikeboe/deep-research/pkg/executor"
	"github.com/mikeboe/deep-research/pkg/search"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// SourceIndexer stores the raw results of a query for later retrieval.
type SourceIndexer interface {
	IndexSources(ctx context.Context, query string, results []search.Result) error
}

// Engine owns the collaborators of a research run. It holds no per-run state
// and may be shared by concurrent runs.
type Engine struct {
	gen      Generator
	provider search.Provider
	opts     Options

	Logger  *slog.Logger
	Indexer SourceIndexer

	trimmer    *splitter.Trimmer
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	retryTimer backoff.Timer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for run events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.Logger = l }
}

// WithIndexer enables source indexing.
func WithIndexer(idx SourceIndexer) EngineOption {
	return func(e *Engine) { e.Indexer = idx }
}

// WithTrimmer replaces the prompt trimmer.
func WithTrimmer(t *splitter.Trimmer) EngineOption {
	return func(e *Engine) { e.trimmer = t }
}

// WithSleep replaces the pacing delay between search calls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = sleep }
}

// WithRetryTimer replaces the timer used between rate-limit retries.
func WithRetryTimer(t backoff.Timer) EngineOption {
	return func(e *Engine) { e.retryTimer = t }
}

// WithClock sets the clock used in prompts.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine from a structured generator and a search provider.
func NewEngine(gen Generator, provider search.Provider, opts Options, options ...EngineOption) *Engine {
	e := &Engine{
		gen:      gen,
		provider: provider,
		opts:     opts.withDefaults(),
		Logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, o := range options {
		o(e)
	}
	if e.trimmer == nil {
		e.trimmer = splitter.NewTrimmer(nil)
	}
	return e
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// generate runs one structured model call and records its outcome.
func (e *Engine) generate(ctx context.Context, task, prompt string, out any) error {
	start := time.Now()
	err := e.gen.GenerateObject(ctx, GenerateRequest{
		Task:   task,
		System: systemPrompt(e.now()),
		Prompt: prompt,
	}, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	modelCalls.WithLabelValues(task, outcome).Inc()
	e.Logger.Debug("Model call finished", "task", task, "outcome", outcome, "duration", time.Since(start))
	if err != nil {
		return fmt.Errorf("%s generation failed: %w", task, err)
	}
	return nil
}

// searchQuery paces, then runs one provider call under the retry policy.
func (e *Engine) searchQuery(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := e.sleep(ctx, e.opts.RequestDelay); err != nil {
		return nil, err
	}

	opts := []executor.Option{
		executor.WithNotify(func(err error, attempt int, wait time.Duration) {
			rateLimitRetries.Inc()
			e.Logger.Warn("Rate limited, waiting before retry", "query", query, "attempt", attempt, "wait", wait, "error", err)
		}),
	}
	if e.retryTimer != nil {
		opts = append(opts, executor.WithTimer(e.retryTimer))
	}

	results, err := executor.Do(ctx, e.opts.Retry, func(ctx context.Context) ([]search.Result, error) {
		sctx, cancel := context.WithTimeout(ctx, e.opts.SearchTimeout)
		defer cancel()
		return e.provider.Search(sctx, search.Request{
			Query:   query,
			Timeout: e.opts.SearchTimeout,
			Limit:   limit,
			Format:  "markdown",
		})
	}, opts...)
	if err != nil {
		if executor.IsRateLimited(err) {
			queriesTotal.WithLabelValues("rate_limited").Inc()
			return nil, fmt.Errorf("%w: query %q: %w", ErrRateLimited, query, err)
		}
		queriesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	queriesTotal.WithLabelValues("ok").Inc()
	return results, nil
}

// researchQuery searches, indexes and summarizes one query.
func (e *Engine) researchQuery(ctx context.Context, query string, limit int) (Summary, error) {
	results, err := e.searchQuery(ctx, query, limit)
	if err != nil {
		return Summary{}, err
	}
	e.Logger.Info("Search finished", "query", query, "results", len(results))

	if e.Indexer != nil {
		if err := e.Indexer.IndexSources(ctx, query, validResults(results)); err != nil {
			e.Logger.Warn("Failed to index sources", "query", query, "error", err)
		}
	}

	return e.Summarize(ctx, query, results), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
