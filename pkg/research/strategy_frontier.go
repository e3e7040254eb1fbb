package research

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxQueriesPerLevel bounds how many queries one expansion asks for.
const maxQueriesPerLevel = 3

// frontierStrategy expands research through follow-up questions, bounded by
// the request depth and a shared RunBudget.
type frontierStrategy struct {
	e *Engine
}

func (s *frontierStrategy) Name() string { return StrategyFrontier }

type frontierRun struct {
	e       *Engine
	answers []string
	budget  *RunBudget
	acc     accumulator

	mu        sync.Mutex
	obs       Observer
	completed int
}

func (s *frontierStrategy) Run(ctx context.Context, req Request, obs Observer) (Result, error) {
	run := &frontierRun{
		e:       s.e,
		answers: req.Answers,
		budget:  NewRunBudget(s.e.opts.MaxTotalQueries, s.e.opts.MaxDepthIterations),
		obs:     obs,
	}

	err := run.explore(ctx, req.Topic, req.Breadth, req.Depth, nil, true)
	res := run.acc.result()
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	run.mu.Lock()
	emit(obs, Progress{Completed: run.completed, Total: run.completed, Percent: 100, Label: "Research complete"})
	run.mu.Unlock()

	s.e.Logger.Info("Frontier exhausted", "queries", run.budget.Queries(), "depthIterations", run.budget.DepthIterations())
	return res, nil
}

// explore plans up to min(breadth, 3) queries for topic, runs them and
// recurses on follow-up questions while depth and budget allow.
func (r *frontierRun) explore(ctx context.Context, topic string, breadth, depth int, learnings []string, root bool) error {
	if !root && r.budget.Exhausted() {
		return nil
	}
	queries, err := r.e.PlanQueries(ctx, topic, r.answers, learnings, min(breadth, maxQueriesPerLevel))
	if err != nil {
		if root || ctx.Err() != nil {
			return err
		}
		r.e.Logger.Warn("Could not expand follow-up, stopping branch", "topic", topic, "error", err)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.opts.Concurrency)

	for _, q := range queries {
		if r.budget.Exhausted() {
			break
		}
		g.Go(func() error {
			return r.runQuery(gctx, q, breadth, depth, learnings)
		})
	}
	return g.Wait()
}

func (r *frontierRun) runQuery(ctx context.Context, q SearchQuery, breadth, depth int, learnings []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.budget.TakeQuery() {
		r.e.Logger.Debug("Query budget exhausted", "query", q.Query, "max", r.budget.MaxQueries())
		return nil
	}

	summary, err := r.e.researchQuery(ctx, q.Query, resultLimit(breadth))
	switch {
	case err == nil:
		r.acc.add(summary)
	case errors.Is(err, ErrRateLimited):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		r.e.Logger.Warn("Query failed, continuing", "query", q.Query, "error", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.progress(q.Query)

	if err != nil || depth <= 0 || len(summary.FollowUpQuestions) == 0 || r.budget.Exhausted() {
		return nil
	}
	if !r.budget.TakeDepthIteration() {
		r.e.Logger.Info("Depth iteration budget exhausted", "query", q.Query)
		return nil
	}

	next := make([]string, 0, len(learnings)+len(summary.Learnings))
	next = append(next, learnings...)
	next = append(next, summary.Learnings...)
	newBreadth := max((breadth+1)/2, 1)

	r.e.Logger.Info("Following up", "question", summary.FollowUpQuestions[0], "depth", depth-1, "breadth", newBreadth)
	return r.explore(ctx, summary.FollowUpQuestions[0], newBreadth, depth-1, next, false)
}

// progress emits under the run lock so events stay ordered.
func (r *frontierRun) progress(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	total := r.budget.MaxQueries()
	emit(r.obs, Progress{
		Completed: r.completed,
		Total:     total,
		Percent:   min(percent(r.completed, total), 99),
		Label:     "Researching: " + query,
	})
}
