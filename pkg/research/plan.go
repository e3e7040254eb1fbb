package research

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type planResponse struct {
	TableOfContents struct {
		Title    string    `json:"title" jsonschema_description:"Title of the research report"`
		Sections []Section `json:"sections" jsonschema:"minItems=1"`
	} `json:"tableOfContents"`
	EstimatedDepth   *float64 `json:"estimatedDepth" jsonschema:"minimum=1,maximum=5" jsonschema_description:"Estimated optimal research depth (1-5)"`
	EstimatedBreadth *float64 `json:"estimatedBreadth" jsonschema:"minimum=3,maximum=10" jsonschema_description:"Estimated optimal research breadth (3-10)"`
}

// GeneratePlan asks the model for a research plan. It always returns a usable
// plan: when the model fails or returns no usable sections, FallbackPlan is used.
func (e *Engine) GeneratePlan(ctx context.Context, topic string, answers []string) Plan {
	e.Logger.Info("Generating research plan", "topic", topic)

	var resp planResponse
	if err := e.generate(ctx, TaskPlan, planPrompt(topic, answers), &resp); err != nil {
		e.Logger.Warn("Plan generation failed, using fallback plan", "error", err)
		return FallbackPlan(topic)
	}

	plan, ok := normalizePlan(topic, resp)
	if !ok {
		e.Logger.Warn("Plan has no usable sections, using fallback plan")
		return FallbackPlan(topic)
	}
	e.Logger.Info("Research plan ready", "title", plan.Title, "sections", len(plan.Sections), "queries", plan.TotalQueries())
	return plan
}

func normalizePlan(topic string, resp planResponse) (Plan, bool) {
	plan := Plan{
		Title:            strings.TrimSpace(resp.TableOfContents.Title),
		EstimatedDepth:   estimate(resp.EstimatedDepth, DefaultDepth, MinDepth, MaxDepth),
		EstimatedBreadth: estimate(resp.EstimatedBreadth, DefaultBreadth, MinBreadth, MaxBreadth),
	}
	if plan.Title == "" {
		plan.Title = topic
	}

	for _, s := range resp.TableOfContents.Sections {
		heading := strings.TrimSpace(s.Heading)
		queries := dedupe(s.Queries)
		if heading == "" || len(queries) == 0 {
			continue
		}
		plan.Sections = append(plan.Sections, Section{
			Heading:     heading,
			Subheadings: dedupe(s.Subheadings),
			Queries:     queries,
		})
	}
	return plan, len(plan.Sections) > 0
}

// estimate substitutes def for a missing or non-numeric value and clamps the rest.
func estimate(v *float64, def, lo, hi int) int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	n := int(math.Round(*v))
	return min(max(n, lo), hi)
}

// FallbackPlan is the generic outline used when no plan could be generated.
func FallbackPlan(topic string) Plan {
	topic = strings.TrimSpace(topic)
	return Plan{
		Title: fmt.Sprintf("Research Report: %s", topic),
		Sections: []Section{
			{
				Heading:     "Introduction",
				Subheadings: []string{"Background", "Scope"},
				Queries:     []string{topic + " overview", topic + " background and history"},
			},
			{
				Heading:     "Main Analysis",
				Subheadings: []string{"Key Findings", "Current Developments"},
				Queries:     []string{topic + " key findings", topic + " current research and developments"},
			},
			{
				Heading:     "Conclusion",
				Subheadings: []string{"Outlook", "Recommendations"},
				Queries:     []string{topic + " future outlook", topic + " implications and recommendations"},
			},
		},
		EstimatedDepth:   DefaultDepth,
		EstimatedBreadth: DefaultBreadth,
	}
}
