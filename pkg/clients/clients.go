// Package clients builds the language models and search providers the
// engine talks to.
package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/llm"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/search"
)

// Model returns the configured provider's model of the given name.
func Model(ctx context.Context, cfg *config.Config, name string) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "", "google", "gemini":
		return GoogleAI(ctx, cfg.GoogleApiKey, name)
	case "openai":
		return OpenAI(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, name)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}

// Generator returns a structured generator that sends planning and report
// calls to the reasoning model and the per-query calls to the fast model.
func Generator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llm.Client, error) {
	reasoning, err := Model(ctx, cfg, cfg.ReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("failed to init reasoning model: %w", err)
	}
	opts := []llm.Option{llm.WithLogger(logger)}
	if cfg.FastModel != "" && cfg.FastModel != cfg.ReasoningModel {
		fast, err := Model(ctx, cfg, cfg.FastModel)
		if err != nil {
			return nil, fmt.Errorf("failed to init fast model: %w", err)
		}
		opts = append(opts,
			llm.WithTaskModel(research.TaskQueries, fast),
			llm.WithTaskModel(research.TaskSummarize, fast),
		)
	}
	return llm.New(reasoning, opts...), nil
}

// SearchProvider returns the configured web search provider.
func SearchProvider(cfg *config.Config) (search.Provider, error) {
	return search.New(cfg.SearchProvider, search.Options{
		FirecrawlApiKey:  cfg.FirecrawlApiKey,
		FirecrawlBaseURL: cfg.FirecrawlBaseURL,
		TavilyApiKey:     cfg.TavilyApiKey,
	})
}
