package research

import (
	"time"

	"github.com/mikeboe/deep-research/pkg/executor"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

const (
	// StrategyPlan runs the queries of a research plan section by section.
	StrategyPlan = "plan"
	// StrategyFrontier expands research recursively through follow-up questions.
	StrategyFrontier = "frontier"
)

const (
	// MaxContentLength bounds, in runes, the search content given to the summarizer.
	MaxContentLength = 8000
	// ReportContextSize is the token budget for learnings in the report prompt.
	ReportContextSize = 150_000
)

// Options tunes pacing, retries and caps of a run.
type Options struct {
	RequestDelay       time.Duration
	Retry              executor.Policy
	SearchTimeout      time.Duration
	SummaryTimeout     time.Duration
	ContextSize        int
	MaxTotalQueries    int
	MaxDepthIterations int
	Concurrency        int
	Strategy           string
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		RequestDelay:       5 * time.Second,
		Retry:              executor.DefaultPolicy(),
		SearchTimeout:      30 * time.Second,
		SummaryTimeout:     60 * time.Second,
		ContextSize:        splitter.DefaultContextSize,
		MaxTotalQueries:    15,
		MaxDepthIterations: 3,
		Concurrency:        1,
		Strategy:           StrategyPlan,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RequestDelay < 0 {
		o.RequestDelay = 0
	}
	if o.Retry.Factor <= 0 {
		o.Retry.Factor = d.Retry.Factor
	}
	if o.Retry.InitialDelay <= 0 {
		o.Retry.InitialDelay = d.Retry.InitialDelay
	}
	if o.Retry.MaxDelay <= 0 {
		o.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = d.SearchTimeout
	}
	if o.SummaryTimeout <= 0 {
		o.SummaryTimeout = d.SummaryTimeout
	}
	if o.ContextSize <= 0 {
		o.ContextSize = d.ContextSize
	}
	if o.MaxTotalQueries <= 0 {
		o.MaxTotalQueries = d.MaxTotalQueries
	}
	if o.MaxDepthIterations <= 0 {
		o.MaxDepthIterations = d.MaxDepthIterations
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	return o
}
