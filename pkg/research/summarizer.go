package research

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/mikeboe/deep-research/pkg/search"
)

type summaryResponse struct {
	Learnings         []string `json:"learnings" jsonschema_description:"Key learnings extracted from the search results"`
	FollowUpQuestions []string `json:"followUpQuestions" jsonschema:"maxItems=1" jsonschema_description:"Follow-up questions for deeper research"`
}

// Summarize extracts learnings and at most one follow-up question from the
// results of one query. It never fails: any error yields an empty Summary.
func (e *Engine) Summarize(ctx context.Context, query string, results []search.Result) Summary {
	valid := validResults(results)
	if len(valid) == 0 {
		e.Logger.Info("No usable results to summarize", "query", query)
		return Summary{}
	}

	contents := make([]string, len(valid))
	for i, r := range valid {
		contents[i] = r.Content
	}
	content := truncateRunes(strings.Join(contents, "\n\n"), MaxContentLength)

	sctx, cancel := context.WithTimeout(ctx, e.opts.SummaryTimeout)
	defer cancel()

	var resp summaryResponse
	if err := e.generate(sctx, TaskSummarize, summarizePrompt(query, content), &resp); err != nil {
		e.Logger.Warn("Summarization failed, continuing without learnings", "query", query, "error", err)
		return Summary{}
	}

	s := Summary{
		Learnings:   dedupe(resp.Learnings),
		VisitedURLs: make([]string, 0, len(valid)),
	}
	if follow := dedupe(resp.FollowUpQuestions); len(follow) > 0 {
		s.FollowUpQuestions = follow[:1]
	}
	seen := make(map[string]struct{}, len(valid))
	for _, r := range valid {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		s.VisitedURLs = append(s.VisitedURLs, r.URL)
	}
	return s
}

// validResults keeps items that have a title, content and url.
func validResults(results []search.Result) []search.Result {
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Content) == "" || strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// dedupe trims entries and drops blanks and repeats, keeping first occurrence.
func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
