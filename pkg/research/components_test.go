package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mikeboe/deep-research/pkg/search"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"Valid", Request{Topic: "caffeine", Breadth: 5, Depth: 2}, false},
		{"Bounds inclusive", Request{Topic: "caffeine", Breadth: 10, Depth: 1}, false},
		{"Missing topic", Request{Topic: "  ", Breadth: 5, Depth: 2}, true},
		{"Breadth too small", Request{Topic: "caffeine", Breadth: 2, Depth: 2}, true},
		{"Breadth too large", Request{Topic: "caffeine", Breadth: 11, Depth: 2}, true},
		{"Depth zero", Request{Topic: "caffeine", Breadth: 5, Depth: 0}, true},
		{"Depth too large", Request{Topic: "caffeine", Breadth: 5, Depth: 6}, true},
		{"Known strategy", Request{Topic: "caffeine", Breadth: 5, Depth: 2, Strategy: "Frontier"}, false},
		{"Unknown strategy", Request{Topic: "caffeine", Breadth: 5, Depth: 2, Strategy: "bfs"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error %v is not ErrInvalidRequest", err)
			}
		})
	}
}

func TestPlanQueries(t *testing.T) {
	gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		return `{"queries":[
			{"query":"caffeine half life","researchGoal":"pharmacology"},
			{"query":"Caffeine  half life","researchGoal":"duplicate"},
			{"query":"  ","researchGoal":"blank"},
			{"query":"adenosine receptors sleep","researchGoal":"mechanism"},
			{"query":"caffeine sleep latency trials","researchGoal":"evidence"}
		]}`, nil
	})
	e, _, _ := newTestEngine(gen, nil, DefaultOptions())

	got, err := e.PlanQueries(context.Background(), "caffeine and sleep", []string{"adults"}, []string{"caffeine blocks adenosine"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"caffeine half life", "adenosine receptors sleep"}
	if len(got) != len(want) {
		t.Fatalf("queries = %+v, want %v", got, want)
	}
	for i := range want {
		if got[i].Query != want[i] {
			t.Errorf("query[%d] = %q, want %q", i, got[i].Query, want[i])
		}
	}

	prompt := gen.lastPrompt(TaskQueries)
	for _, s := range []string{"maximum of 2 queries", "1. adults", "caffeine blocks adenosine"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
}

func TestPlanQueriesPropagatesErrors(t *testing.T) {
	modelErr := errors.New("schema mismatch")
	gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		return "", modelErr
	})
	e, _, _ := newTestEngine(gen, nil, DefaultOptions())

	if _, err := e.PlanQueries(context.Background(), "topic", nil, nil, 3); !errors.Is(err, modelErr) {
		t.Fatalf("err = %v, want %v", err, modelErr)
	}

	empty := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		return `{"queries":[]}`, nil
	})
	e, _, _ = newTestEngine(empty, nil, DefaultOptions())
	if _, err := e.PlanQueries(context.Background(), "topic", nil, nil, 3); err == nil {
		t.Fatal("expected error for empty query list")
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", MaxContentLength+500)

	tests := []struct {
		name          string
		results       []search.Result
		reply         string
		replyErr      error
		wantCalls     int
		wantLearnings []string
		wantFollowUps int
		wantURLs      []string
	}{
		{
			name:      "No valid items skips the model",
			results:   []search.Result{{Title: "t", URL: "https://x"}, {Content: "c", URL: "https://y"}},
			wantCalls: 0,
		},
		{
			name:          "Filters invalid items and caps follow-ups",
			results:       resultsFor("caffeine"),
			reply:         `{"learnings":["a"," a ","b",""],"followUpQuestions":["why?","how?"]}`,
			wantCalls:     1,
			wantLearnings: []string{"a", "b"},
			wantFollowUps: 1,
			wantURLs:      []string{"https://a.example/caffeine", "https://b.example/caffeine"},
		},
		{
			name:      "Model error yields empty summary",
			results:   resultsFor("caffeine"),
			replyErr:  errors.New("malformed output"),
			wantCalls: 1,
		},
		{
			name:          "Long content is cut",
			results:       []search.Result{{Title: "long", Content: long, URL: "https://long"}},
			reply:         `{"learnings":["x"],"followUpQuestions":[]}`,
			wantCalls:     1,
			wantLearnings: []string{"x"},
			wantURLs:      []string{"https://long"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
				return tt.reply, tt.replyErr
			})
			e, _, _ := newTestEngine(gen, nil, DefaultOptions())

			got := e.Summarize(context.Background(), "q", tt.results)

			if calls := gen.count(TaskSummarize); calls != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", calls, tt.wantCalls)
			}
			if strings.Join(got.Learnings, "|") != strings.Join(tt.wantLearnings, "|") {
				t.Errorf("learnings = %v, want %v", got.Learnings, tt.wantLearnings)
			}
			if len(got.FollowUpQuestions) != tt.wantFollowUps {
				t.Errorf("follow-ups = %v, want %d", got.FollowUpQuestions, tt.wantFollowUps)
			}
			if strings.Join(got.VisitedURLs, "|") != strings.Join(tt.wantURLs, "|") {
				t.Errorf("urls = %v, want %v", got.VisitedURLs, tt.wantURLs)
			}

			if tt.name == "Long content is cut" {
				prompt := gen.lastPrompt(TaskSummarize)
				if n := strings.Count(prompt, "é"); n != MaxContentLength {
					t.Errorf("content runes in prompt = %d, want %d", n, MaxContentLength)
				}
				if !utf8.ValidString(prompt) {
					t.Error("prompt is not valid UTF-8 after cutting")
				}
			}
		})
	}
}

func TestSummarizeTimeout(t *testing.T) {
	gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	opts := DefaultOptions()
	opts.SummaryTimeout = 5 * time.Millisecond
	e, _, _ := newTestEngine(gen, nil, opts)

	got := e.Summarize(context.Background(), "q", resultsFor("slow"))
	if len(got.Learnings) != 0 || len(got.VisitedURLs) != 0 {
		t.Errorf("summary = %+v, want empty", got)
	}
}

func TestGeneratePlan(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		replyErr     error
		wantFallback bool
		wantDepth    int
		wantBreadth  int
		wantSections int
	}{
		{
			name: "Valid plan",
			reply: `{"tableOfContents":{"title":"Caffeine and Sleep","sections":[
				{"heading":"Mechanisms","subheadings":["Adenosine"],"researchQueries":["caffeine adenosine","caffeine adenosine"]},
				{"heading":"Evidence","subheadings":[],"researchQueries":["caffeine sleep trials"]}
			]},"estimatedDepth":4,"estimatedBreadth":7}`,
			wantDepth: 4, wantBreadth: 7, wantSections: 2,
		},
		{
			name:      "Missing estimates use defaults",
			reply:     `{"tableOfContents":{"title":"T","sections":[{"heading":"H","researchQueries":["q"]}]}}`,
			wantDepth: DefaultDepth, wantBreadth: DefaultBreadth, wantSections: 1,
		},
		{
			name:      "Out of range estimates are clamped",
			reply:     `{"tableOfContents":{"title":"T","sections":[{"heading":"H","researchQueries":["q"]}]},"estimatedDepth":9,"estimatedBreadth":1}`,
			wantDepth: MaxDepth, wantBreadth: MinBreadth, wantSections: 1,
		},
		{
			name:      "Invalid sections are dropped",
			reply:     `{"tableOfContents":{"title":"T","sections":[{"heading":"","researchQueries":["q"]},{"heading":"Empty","researchQueries":[" "]},{"heading":"Ok","researchQueries":["q2"]}]},"estimatedDepth":2,"estimatedBreadth":4}`,
			wantDepth: 2, wantBreadth: 4, wantSections: 1,
		},
		{
			name:         "No usable sections falls back",
			reply:        `{"tableOfContents":{"title":"T","sections":[]},"estimatedDepth":2,"estimatedBreadth":4}`,
			wantFallback: true, wantDepth: DefaultDepth, wantBreadth: DefaultBreadth, wantSections: 3,
		},
		{
			name:         "Model failure falls back",
			replyErr:     errors.New("provider down"),
			wantFallback: true, wantDepth: DefaultDepth, wantBreadth: DefaultBreadth, wantSections: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
				return tt.reply, tt.replyErr
			})
			e, _, _ := newTestEngine(gen, nil, DefaultOptions())

			plan := e.GeneratePlan(context.Background(), "caffeine and sleep", []string{"adults"})

			if plan.EstimatedDepth != tt.wantDepth || plan.EstimatedBreadth != tt.wantBreadth {
				t.Errorf("estimates = %d/%d, want %d/%d", plan.EstimatedDepth, plan.EstimatedBreadth, tt.wantDepth, tt.wantBreadth)
			}
			if len(plan.Sections) != tt.wantSections {
				t.Fatalf("sections = %d, want %d", len(plan.Sections), tt.wantSections)
			}
			if tt.wantFallback && plan.Sections[0].Heading != "Introduction" {
				t.Errorf("expected fallback plan, got %+v", plan)
			}
			for _, s := range plan.Sections {
				if len(s.Queries) == 0 {
					t.Errorf("section %q has no queries", s.Heading)
				}
			}
		})
	}
}

func TestFallbackPlanValidity(t *testing.T) {
	for _, topic := range []string{"caffeine", "  quantum error correction ", "日本の経済"} {
		plan := FallbackPlan(topic)
		if len(plan.Sections) == 0 {
			t.Fatalf("FallbackPlan(%q) has no sections", topic)
		}
		for _, s := range plan.Sections {
			if len(s.Queries) == 0 {
				t.Errorf("FallbackPlan(%q) section %q has no queries", topic, s.Heading)
			}
			for _, q := range s.Queries {
				if !strings.HasPrefix(q, strings.TrimSpace(topic)) {
					t.Errorf("query %q is not derived from topic %q", q, topic)
				}
			}
		}
		if plan.EstimatedDepth < MinDepth || plan.EstimatedDepth > MaxDepth {
			t.Errorf("depth %d out of range", plan.EstimatedDepth)
		}
		if plan.EstimatedBreadth < MinBreadth || plan.EstimatedBreadth > MaxBreadth {
			t.Errorf("breadth %d out of range", plan.EstimatedBreadth)
		}
	}
}

func TestGenerateQuestions(t *testing.T) {
	gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		return `{"questions":[
			{"id":"","question":"Which population?","goal":"scope","type":"text"},
			{"id":"q2","question":"Which outcome?","goal":"focus","type":"choice","options":["latency","quality"]},
			{"id":"q3","question":"Any timeframe?","goal":"recency","type":"choice"},
			{"id":"q4","question":"","goal":"blank"},
			{"id":"q5","question":"Preferred sources?","goal":"quality","type":"essay"},
			{"id":"q6","question":"Anything else?","goal":"extra","type":"multiline"}
		]}`, nil
	})
	e, _, _ := newTestEngine(gen, nil, DefaultOptions())

	qs, err := e.GenerateQuestions(context.Background(), "caffeine and sleep", 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != maxQuestions {
		t.Fatalf("questions = %d, want %d", len(qs), maxQuestions)
	}
	if qs[0].ID == "" {
		t.Error("blank id was not replaced")
	}
	if qs[1].Type != QuestionChoice || len(qs[1].Options) != 2 {
		t.Errorf("choice question = %+v", qs[1])
	}
	if qs[2].Type != QuestionText {
		t.Errorf("choice without options type = %q, want text", qs[2].Type)
	}
	if qs[3].Type != QuestionText || qs[3].ID != "q5" {
		t.Errorf("unknown type question = %+v", qs[3])
	}

	if _, err := e.GenerateQuestions(context.Background(), " ", 4, 2); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank topic err = %v, want ErrInvalidRequest", err)
	}
}

func TestWriteReport(t *testing.T) {
	gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
		return `{"reportMarkdown":"# Caffeine and Sleep\n\nCaffeine delays sleep onset.\n\nSee https://a.example for details."}`, nil
	})
	e, _, _ := newTestEngine(gen, nil, DefaultOptions())

	urls := []string{"https://a.example", "https://b.example", "https://a.example", "https://c.example"}
	report, err := e.WriteReport(context.Background(), "caffeine and sleep", []string{"l1", "l2"}, urls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, sources, ok := strings.Cut(report, "\n\n## Sources\n\n")
	if !ok {
		t.Fatalf("report has no sources section:\n%s", report)
	}
	want := "- https://a.example\n- https://b.example\n- https://c.example"
	if sources != want {
		t.Errorf("sources =\n%s\nwant\n%s", sources, want)
	}

	prompt := gen.lastPrompt(TaskReport)
	if !strings.Contains(prompt, "<learning>\nl1\n</learning>\n<learning>\nl2\n</learning>") {
		t.Errorf("learnings not tagged in prompt:\n%s", prompt)
	}
	if ReportTitle(report) != "Caffeine and Sleep" {
		t.Errorf("title = %q", ReportTitle(report))
	}
	if ReportSummary(report) != "Caffeine delays sleep onset." {
		t.Errorf("summary = %q", ReportSummary(report))
	}
}

func TestWriteReportErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"Model error", "", errors.New("timeout")},
		{"Blank report", `{"reportMarkdown":"  "}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newScriptedGenerator(func(ctx context.Context, task, prompt string, n int) (string, error) {
				return tt.reply, tt.err
			})
			e, _, _ := newTestEngine(gen, nil, DefaultOptions())
			if _, err := e.WriteReport(context.Background(), "p", []string{"l"}, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestChannelObserverDoesNotBlock(t *testing.T) {
	ch := make(chan Progress, 1)
	obs := ChannelObserver(ch)
	obs.OnProgress(Progress{Completed: 1})
	obs.OnProgress(Progress{Completed: 2})

	if got := <-ch; got.Completed != 1 {
		t.Errorf("first event = %+v, want completed 1", got)
	}
	select {
	case p := <-ch:
		t.Errorf("unexpected buffered event %+v", p)
	default:
	}
}

func TestRunBudget(t *testing.T) {
	b := NewRunBudget(5, 2)
	done := make(chan int)
	for i := 0; i < 10; i++ {
		go func() {
			n := 0
			for b.TakeQuery() {
				n++
			}
			done <- n
		}()
	}
	total := 0
	for i := 0; i < 10; i++ {
		total += <-done
	}
	if total != 5 || b.Queries() != 5 {
		t.Errorf("queries taken = %d (%d recorded), want 5", total, b.Queries())
	}
	if !b.TakeDepthIteration() || !b.TakeDepthIteration() || b.TakeDepthIteration() {
		t.Error("depth iterations should stop after 2")
	}
}
