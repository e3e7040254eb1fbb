package research

import "context"

// Task names identify the model call for logging, metrics and model routing.
const (
	TaskQuestions = "questions"
	TaskQueries   = "queries"
	TaskSummarize = "summarize"
	TaskPlan      = "plan"
	TaskReport    = "report"
)

// GenerateRequest is one structured-generation call.
type GenerateRequest struct {
	Task   string
	System string
	Prompt string
}

// Generator produces a JSON object matching out's type, decoding it into out.
// Implementations derive the output schema from out and return an error when
// the model response does not conform.
type Generator interface {
	GenerateObject(ctx context.Context, req GenerateRequest, out any) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest, out any) error

func (f GeneratorFunc) GenerateObject(ctx context.Context, req GenerateRequest, out any) error {
	return f(ctx, req, out)
}
