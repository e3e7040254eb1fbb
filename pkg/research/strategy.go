package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy is one way of driving a research run.
type Strategy interface {
	Name() string
	Run(ctx context.Context, req Request, obs Observer) (Result, error)
}

// StrategyFor returns the strategy registered under name.
func (e *Engine) StrategyFor(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyPlan:
		return &planStrategy{e: e}, nil
	case StrategyFrontier:
		return &frontierStrategy{e: e}, nil
	default:
		return nil, invalidf("unknown strategy %q", name)
	}
}

// Run validates req and drives it with the requested strategy, or the
// configured one. On a fatal error the learnings gathered so far are returned
// together with the error.
func (e *Engine) Run(ctx context.Context, req Request, obs Observer) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	name := req.Strategy
	if name == "" {
		name = e.opts.Strategy
	}
	strategy, err := e.StrategyFor(name)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	e.Logger.Info("Starting research", "topic", req.Topic, "strategy", strategy.Name(), "breadth", req.Breadth, "depth", req.Depth)

	res, err := strategy.Run(ctx, req, obs)

	runDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
	status := "completed"
	switch {
	case err == nil:
	case errors.Is(err, ErrRateLimited):
		status = "throttled"
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	default:
		status = "failed"
	}
	runsTotal.WithLabelValues(strategy.Name(), status).Inc()

	if err != nil {
		e.Logger.Error("Research stopped", "status", status, "learnings", len(res.Learnings), "sources", len(res.VisitedURLs), "error", err)
		return res, fmt.Errorf("research %q: %w", req.Topic, err)
	}
	e.Logger.Info("Research complete", "learnings", len(res.Learnings), "sources", len(res.VisitedURLs), "duration", time.Since(start))
	return res, nil
}

// resultLimit scales the per-query result count with breadth.
func resultLimit(breadth int) int {
	return max(3, (breadth+1)/2)
}
