package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/chat"
)

type StartResearchArgs struct {
	Query    string   `json:"query" jsonschema:"The research topic"`
	Answers  []string `json:"answers,omitempty" jsonschema:"Answers to clarifying questions"`
	Breadth  int      `json:"breadth,omitempty" jsonschema:"Queries per stage, 3 to 10"`
	Depth    int      `json:"depth,omitempty" jsonschema:"Follow-up rounds, 1 to 5"`
	Strategy string   `json:"strategy,omitempty" jsonschema:"plan or frontier"`
}

type GetResearchArgs struct {
	ID string `json:"id" jsonschema:"The research job id"`
}

// NewMCPServer exposes planning, jobs and, when tools is not nil, the source
// index as MCP tools.
func NewMCPServer(svc *Service, tools *chat.SourceTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "deep-research", Version: "1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_plan",
		Description: "Draft a research plan (table of contents with search queries per section) for a topic.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PlanRequest) (*mcp.CallToolResult, any, error) {
		if args.Query == "" {
			return nil, nil, fmt.Errorf("query is required")
		}
		return jsonResult(svc.Plan(ctx, args))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_research",
		Description: "Start a background research job and return its id.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args StartResearchArgs) (*mcp.CallToolResult, any, error) {
		job, err := svc.CreateJob(ctx, CreateJobRequest{
			Query:    args.Query,
			Answers:  args.Answers,
			Breadth:  args.Breadth,
			Depth:    args.Depth,
			Strategy: args.Strategy,
		})
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(job)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_research",
		Description: "Return status, progress and, once completed, the report of a research job.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetResearchArgs) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(args.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid job id %q", args.ID)
		}
		job, err := svc.GetJob(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(job)
	})

	if tools != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_sources",
			Description: "Semantic search over the sources collected by research runs.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args chat.SearchSourcesArgs) (*mcp.CallToolResult, any, error) {
			resp, err := tools.SearchSources(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(resp.Results), nil, nil
		})

		mcp.AddTool(server, &mcp.Tool{
			Name:        "find_source",
			Description: "Return every stored chunk of one source URL.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, args chat.FindSourceArgs) (*mcp.CallToolResult, any, error) {
			resp, err := tools.FindSource(ctx, args)
			if err != nil {
				return nil, nil, err
			}
			return textResult(resp.Content), nil, nil
		})
	}

	return server
}

// NewMCPHandler serves server over streamable HTTP.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(data)), nil, nil
}
