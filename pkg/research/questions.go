package research

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const maxQuestions = 4

type questionsResponse struct {
	Questions []Question `json:"questions" jsonschema:"minItems=2,maxItems=4" jsonschema_description:"List of questions to ask before starting research" validate:"min=1,dive"`
}

// GenerateQuestions asks the model for clarifying questions about topic.
func (e *Engine) GenerateQuestions(ctx context.Context, topic string, breadth, depth int) ([]Question, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, invalidf("topic is required")
	}
	e.Logger.Info("Generating clarifying questions", "topic", topic)

	var resp questionsResponse
	if err := e.generate(ctx, TaskQuestions, questionsPrompt(topic, breadth, depth), &resp); err != nil {
		return nil, err
	}

	questions := make([]Question, 0, maxQuestions)
	for _, q := range resp.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		if strings.TrimSpace(q.ID) == "" {
			q.ID = uuid.NewString()
		}
		switch q.Type {
		case QuestionText, QuestionMultiline:
		case QuestionChoice:
			if len(q.Options) == 0 {
				q.Type = QuestionText
			}
		default:
			q.Type = QuestionText
		}
		if q.Type != QuestionChoice {
			q.Options = nil
		}
		questions = append(questions, q)
		if len(questions) == maxQuestions {
			break
		}
	}
	if len(questions) == 0 {
		return nil, errors.New("model returned no usable questions")
	}
	return questions, nil
}
