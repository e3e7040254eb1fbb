package research

import (
	"context"
	"errors"
)

// planStrategy runs every query of a research plan in declared order.
type planStrategy struct {
	e *Engine
}

func (s *planStrategy) Name() string { return StrategyPlan }

func (s *planStrategy) Run(ctx context.Context, req Request, obs Observer) (Result, error) {
	e := s.e
	var plan Plan
	if req.Plan != nil {
		plan = *req.Plan
	} else {
		plan = e.GeneratePlan(ctx, req.Topic, req.Answers)
	}

	var acc accumulator
	total := plan.TotalQueries()
	limit := resultLimit(req.Breadth)
	processed := make(map[string]struct{}, total)
	completed := 0

	if total == 0 {
		emit(obs, Progress{Percent: 100, Label: "No queries to research"})
		return acc.result(), nil
	}

	for _, section := range plan.Sections {
		e.Logger.Info("Researching section", "heading", section.Heading, "queries", len(section.Queries))
		for _, query := range section.Queries {
			if err := ctx.Err(); err != nil {
				return acc.result(), err
			}

			key := queryKey(query)
			if _, dup := processed[key]; dup || key == "" {
				queriesTotal.WithLabelValues("skipped").Inc()
				e.Logger.Debug("Skipping duplicate query", "query", query)
			} else {
				processed[key] = struct{}{}
				summary, err := e.researchQuery(ctx, query, limit)
				switch {
				case err == nil:
					acc.add(summary)
				case errors.Is(err, ErrRateLimited):
					return acc.result(), err
				case ctx.Err() != nil:
					return acc.result(), ctx.Err()
				default:
					e.Logger.Warn("Query failed, continuing", "query", query, "error", err)
				}
			}

			// Summarize swallows errors, so a cancelled query can look successful.
			if err := ctx.Err(); err != nil {
				return acc.result(), err
			}
			completed++
			emit(obs, Progress{
				Completed: completed,
				Total:     total,
				Percent:   percent(completed, total),
				Label:     "Researching: " + section.Heading,
			})
		}
	}
	return acc.result(), nil
}
