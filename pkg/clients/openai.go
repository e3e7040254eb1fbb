package clients

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI returns a chat model for any OpenAI compatible endpoint.
func OpenAI(apiKey, baseURL, model string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return llm, nil
}
