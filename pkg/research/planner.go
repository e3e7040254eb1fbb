package research

import (
	"context"
	"errors"
	"strings"
)

type queriesResponse struct {
	Queries []SearchQuery `json:"queries" jsonschema:"minItems=1" jsonschema_description:"List of SERP queries" validate:"min=1,dive"`
}

// PlanQueries asks the model for at most maxQueries distinct search queries.
// Prior learnings steer it toward unexplored territory. Errors propagate.
func (e *Engine) PlanQueries(ctx context.Context, topic string, answers, learnings []string, maxQueries int) ([]SearchQuery, error) {
	if maxQueries < 1 {
		maxQueries = 1
	}

	var resp queriesResponse
	if err := e.generate(ctx, TaskQueries, queriesPrompt(topic, answers, learnings, maxQueries), &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(resp.Queries))
	queries := make([]SearchQuery, 0, maxQueries)
	for _, q := range resp.Queries {
		q.Query = strings.TrimSpace(q.Query)
		key := queryKey(q.Query)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}
	if len(queries) == 0 {
		return nil, errors.New("model returned no usable queries")
	}

	e.Logger.Info("Generated queries", "topic", topic, "count", len(queries))
	return queries, nil
}

// queryKey normalizes a query for duplicate detection.
func queryKey(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
