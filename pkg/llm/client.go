// Package llm turns a langchaingo model into a structured JSON generator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/research"
)

const responseFormat = `Return the JSON object directly without any formatting or additional text. The object must match the following JSON schema and include every required property:

`

// Client generates schema-conforming objects, retrying when the model fails
// or its answer does not decode and validate.
type Client struct {
	model       llms.Model
	taskModels  map[string]llms.Model
	maxAttempts int
	retryDelay  time.Duration
	validate    *validator.Validate
	Logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTaskModel routes one task to a different model.
func WithTaskModel(task string, model llms.Model) Option {
	return func(c *Client) { c.taskModels[task] = model }
}

// WithMaxAttempts sets how many times a call is attempted.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the base of the linear delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// New returns a Client backed by model.
func New(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:       model,
		taskModels:  make(map[string]llms.Model),
		maxAttempts: 3,
		retryDelay:  time.Second,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		Logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ research.Generator = (*Client)(nil)

// GenerateObject implements research.Generator.
func (c *Client) GenerateObject(ctx context.Context, req research.GenerateRequest, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("llm: out must be a non-nil pointer")
	}

	model := c.model
	if m, ok := c.taskModels[req.Task]; ok {
		model = m
	}

	system := req.System + "\n\n# Response Format: \n\n" + responseFormat + SchemaFor(out)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}

	var lastErr error
	for i := 0; i < c.maxAttempts; i++ {
		if i > 0 {
			c.Logger.Warn("Retrying LLM generation", "task", req.Task, "attempt", i+1, "last_error", lastErr)
			if err := sleep(ctx, c.retryDelay*time.Duration(i)); err != nil {
				return err
			}
		}

		resp, err := model.GenerateContent(ctx, messages, llms.WithJSONMode())
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("llm generation failed: %w", err)
			}
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("llm returned no choices")
			continue
		}

		if err := c.decode(resp.Choices[0].Content, rv); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", req.Task, c.maxAttempts, lastErr)
}

// decode resets out, unmarshals content into it and validates the result.
func (c *Client) decode(content string, rv reflect.Value) error {
	rv.Elem().Set(reflect.Zero(rv.Elem().Type()))

	body := stripFences(content)
	if err := json.Unmarshal([]byte(body), rv.Interface()); err != nil {
		return fmt.Errorf("json parse error: %w (content: %s)", err, truncate(body, 200))
	}
	if rv.Elem().Kind() == reflect.Struct {
		if err := c.validate.Struct(rv.Interface()); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}

// stripFences removes a surrounding Markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
