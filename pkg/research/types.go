package research

import "strings"

// SearchQuery is a query to send to the search provider and the reason for it.
type SearchQuery struct {
	Query        string `json:"query" jsonschema_description:"The SERP query" validate:"required"`
	ResearchGoal string `json:"researchGoal" jsonschema_description:"First talk about the goal of the research that this query is meant to accomplish, then go deeper into how to advance the research once the results are found, mention additional research directions. Be as specific as possible, especially for additional research directions."`
}

// Section is one heading of a research plan together with the queries that research it.
type Section struct {
	Heading     string   `json:"heading" jsonschema_description:"Section heading" validate:"required"`
	Subheadings []string `json:"subheadings" jsonschema_description:"Subsection headings"`
	Queries     []string `json:"researchQueries" jsonschema_description:"Specific search queries to research this section"`
}

// Plan is a table of contents with per-section queries and suggested run size.
type Plan struct {
	Title            string    `json:"title"`
	Sections         []Section `json:"sections"`
	EstimatedDepth   int       `json:"estimatedDepth"`
	EstimatedBreadth int       `json:"estimatedBreadth"`
}

// TotalQueries counts every query in the plan, duplicates included.
func (p Plan) TotalQueries() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Queries)
	}
	return n
}

// QuestionType selects how a clarifying question is answered.
type QuestionType string

const (
	QuestionText      QuestionType = "text"
	QuestionMultiline QuestionType = "multiline"
	QuestionChoice    QuestionType = "choice"
)

// Question is a clarifying question asked before research starts.
type Question struct {
	ID              string       `json:"id" jsonschema_description:"Unique identifier for the question"`
	Question        string       `json:"question" jsonschema_description:"The question to ask" validate:"required"`
	Goal            string       `json:"goal" jsonschema_description:"Why this question is important for the research"`
	SuggestedAnswer string       `json:"suggestedAnswer,omitempty" jsonschema_description:"A reasonable default answer the user can accept"`
	Type            QuestionType `json:"type" jsonschema:"enum=text,enum=multiline,enum=choice" jsonschema_description:"Type of question (text, multiline, or choice)"`
	Options         []string     `json:"options,omitempty" jsonschema_description:"Options for choice questions"`
}

// Summary is what the summarizer extracted from one batch of search results.
type Summary struct {
	Learnings         []string `json:"learnings"`
	FollowUpQuestions []string `json:"followUpQuestions"`
	VisitedURLs       []string `json:"visitedUrls"`
}

// Result is the terminal output of a research run.
type Result struct {
	Learnings   []string `json:"learnings"`
	VisitedURLs []string `json:"visitedUrls"`
}

// Request starts a research run.
type Request struct {
	Topic    string   `json:"query"`
	Answers  []string `json:"answers"`
	Breadth  int      `json:"breadth"`
	Depth    int      `json:"depth"`
	Plan     *Plan    `json:"plan,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
}

const (
	MinBreadth = 3
	MaxBreadth = 10
	MinDepth   = 1
	MaxDepth   = 5

	DefaultBreadth = 6
	DefaultDepth   = 3
)

// Validate rejects requests outside the supported ranges.
func (r Request) Validate() error {
	switch {
	case trimmed(r.Topic) == "":
		return invalidf("topic is required")
	case r.Breadth < MinBreadth || r.Breadth > MaxBreadth:
		return invalidf("breadth must be between %d and %d, got %d", MinBreadth, MaxBreadth, r.Breadth)
	case r.Depth < MinDepth || r.Depth > MaxDepth:
		return invalidf("depth must be between %d and %d, got %d", MinDepth, MaxDepth, r.Depth)
	}
	switch strings.ToLower(trimmed(r.Strategy)) {
	case "", StrategyPlan, StrategyFrontier:
	default:
		return invalidf("unknown strategy %q", r.Strategy)
	}
	return nil
}
