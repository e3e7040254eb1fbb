package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type reportResponse struct {
	ReportMarkdown string `json:"reportMarkdown" jsonschema_description:"Final report on the topic in Markdown" validate:"required"`
}

// WriteReport asks the model for a long-form Markdown report and appends a
// Sources section listing every visited URL once, in order.
func (e *Engine) WriteReport(ctx context.Context, prompt string, learnings, visitedURLs []string) (string, error) {
	e.Logger.Info("Writing final report", "learnings", len(learnings), "sources", len(visitedURLs))

	tagged := make([]string, len(learnings))
	for i, l := range learnings {
		tagged[i] = fmt.Sprintf("<learning>\n%s\n</learning>", l)
	}
	learningsString := e.trimmer.Trim(strings.Join(tagged, "\n"), ReportContextSize)

	var resp reportResponse
	if err := e.generate(ctx, TaskReport, reportPrompt(prompt, learningsString), &resp); err != nil {
		return "", err
	}
	body := strings.TrimSpace(resp.ReportMarkdown)
	if body == "" {
		return "", errors.New("model returned an empty report")
	}

	return body + SourcesSection(visitedURLs), nil
}

// SourcesSection renders the deterministic list of sources.
func SourcesSection(urls []string) string {
	var b strings.Builder
	b.WriteString("\n\n## Sources\n\n")
	seen := make(map[string]struct{}, len(urls))
	first := true
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		if !first {
			b.WriteString("\n")
		}
		first = false
		b.WriteString("- ")
		b.WriteString(u)
	}
	return b.String()
}

// ReportTitle returns the first line of a report without its heading marker.
func ReportTitle(report string) string {
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}

// ReportSummary returns the first non-empty line after the title.
func ReportSummary(report string) string {
	lines := strings.Split(report, "\n")
	titleSeen := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !titleSeen {
			titleSeen = true
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}
