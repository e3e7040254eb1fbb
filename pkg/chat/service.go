// Package chat answers questions about indexed research sources with an ADK
// agent and keeps the conversation history in Postgres.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/genai"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
)

const (
	appName   = "deep-research"
	agentName = "source_assistant"
	chatUser  = "user"
)

const instruction = `You answer questions about the sources gathered by earlier research runs.
Always call search_sources first. Use find_source to read a whole source when a snippet is not enough.
Group the answer by source: "# Source: <url>" followed by a bullet list of the supporting content.
If the sources do not answer the question, say so.`

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (*database.Conversation, error)
	ListConversations(ctx context.Context) ([]database.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]database.Message, error)
	AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string) (*database.Message, error)
	SetConversationTitle(ctx context.Context, id uuid.UUID, title string) error
}

type Service struct {
	store      ConversationStore
	client     *genai.Client
	titleModel string
	agent      agent.Agent
	Logger     *slog.Logger
}

// StreamEvent is one event of a chat answer stream.
type StreamEvent struct {
	Type    string `json:"type"` // content, tool_call, tool_result, error, done
	Payload any    `json:"payload"`
}

func NewService(ctx context.Context, store ConversationStore, tools *SourceTools, cfg *config.Config) (*Service, error) {
	clientConfig := &genai.ClientConfig{APIKey: cfg.GoogleApiKey}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	modelClient, err := gemini.NewModel(ctx, cfg.ReasoningModel, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	sourceAgent, err := llmagent.New(llmagent.Config{
		Name:        agentName,
		Model:       modelClient,
		Description: "Answers questions from indexed research sources.",
		Instruction: instruction,
		Toolsets:    []tool.Toolset{tools},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &Service{
		store:      store,
		client:     client,
		titleModel: cfg.FastModel,
		agent:      sourceAgent,
		Logger:     slog.Default(),
	}, nil
}

func (s *Service) CreateConversation(ctx context.Context) (*database.Conversation, error) {
	return s.store.CreateConversation(ctx)
}

func (s *Service) ListConversations(ctx context.Context) ([]database.Conversation, error) {
	return s.store.ListConversations(ctx)
}

func (s *Service) GetHistory(ctx context.Context, conversationID uuid.UUID) ([]database.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage stores the user's message and streams the agent's answer. The
// answer is stored once the stream has been fully consumed.
func (s *Service) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (iter.Seq2[StreamEvent, error], error) {
	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	if _, err := s.store.AddMessage(ctx, conversationID, "user", content); err != nil {
		return nil, err
	}

	sessionSvc := session.InMemoryService()
	sessionID := conversationID.String()
	created, err := sessionSvc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    chatUser,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	for _, msg := range history {
		if err := sessionSvc.AppendEvent(ctx, created.Session, historyEvent(msg)); err != nil {
			return nil, fmt.Errorf("failed to replay history: %w", err)
		}
	}

	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          s.agent,
		SessionService: sessionSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	userContent := genai.NewContentFromText(content, genai.RoleUser)

	return func(yield func(StreamEvent, error) bool) {
		s.Logger.Info("Starting agent run", "conversation_id", conversationID)
		var answer strings.Builder
		streamed := false

		events := r.Run(ctx, chatUser, sessionID, userContent, agent.RunConfig{
			StreamingMode: agent.StreamingModeSSE,
		})
		for event, err := range events {
			if err != nil {
				s.Logger.Error("Agent run failed", "conversation_id", conversationID, "error", err)
				yield(StreamEvent{Type: "error", Payload: err.Error()}, err)
				return
			}
			if event.LLMResponse.Content == nil {
				continue
			}
			partial := event.LLMResponse.Partial
			for _, part := range event.LLMResponse.Content.Parts {
				var ev StreamEvent
				switch {
				case part.Text != "":
					// The closing event of a streamed turn repeats its deltas.
					if !partial && streamed {
						continue
					}
					answer.WriteString(part.Text)
					ev = StreamEvent{Type: "content", Payload: part.Text}
				case part.FunctionCall != nil:
					s.Logger.Info("Agent tool call", "tool", part.FunctionCall.Name)
					ev = StreamEvent{Type: "tool_call", Payload: part.FunctionCall}
				case part.FunctionResponse != nil:
					ev = StreamEvent{Type: "tool_result", Payload: part.FunctionResponse}
				default:
					continue
				}
				if !yield(ev, nil) {
					return
				}
			}
			streamed = partial
		}

		if _, err := s.store.AddMessage(context.WithoutCancel(ctx), conversationID, "model", answer.String()); err != nil {
			s.Logger.Error("Failed to save model message", "conversation_id", conversationID, "error", err)
		}

		yield(StreamEvent{Type: "done", Payload: "done"}, nil)

		if len(history) == 0 {
			go s.generateTitle(conversationID, content, answer.String())
		}
	}, nil
}

func historyEvent(msg database.Message) *session.Event {
	role, author := genai.RoleUser, chatUser
	if msg.Role == "model" {
		role, author = genai.RoleModel, agentName
	}
	evt := session.NewEvent(uuid.NewString())
	evt.Author = author
	evt.LLMResponse = model.LLMResponse{
		Content: genai.NewContentFromText(msg.Content, genai.Role(role)),
	}
	return evt
}

func (s *Service) generateTitle(convID uuid.UUID, userMsg, modelMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	prompt := fmt.Sprintf("Generate a short, concise title (max 5 words) for this chat conversation:\nUser: %s\nModel: %s", userMsg, modelMsg)
	resp, err := s.client.Models.GenerateContent(ctx, s.titleModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{"title": {Type: genai.TypeString}},
			Required:   []string{"title"},
		},
	})
	if err != nil {
		s.Logger.Warn("Failed to generate conversation title", "conversation_id", convID, "error", err)
		return
	}

	var out struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		s.Logger.Warn("Failed to decode conversation title", "conversation_id", convID, "error", err)
		return
	}
	if title := strings.TrimSpace(out.Title); title != "" {
		if err := s.store.SetConversationTitle(ctx, convID, title); err != nil {
			s.Logger.Error("Failed to update conversation title", "error", err)
		}
	}
}
