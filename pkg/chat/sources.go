package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

// SourceIndex is the read side of the source collection.
type SourceIndex interface {
	Search(ctx context.Context, embedding []float32, topK int, filter map[string]any) ([]vectorstore.Match, error)
	Find(ctx context.Context, filter map[string]any) ([]vectorstore.Chunk, error)
}

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// SourceTools answers lookups over indexed research sources. It is an ADK
// toolset and also backs the MCP tools.
type SourceTools struct {
	index    SourceIndex
	embedder QueryEmbedder
	Logger   *slog.Logger
}

func NewSourceTools(index SourceIndex, embedder QueryEmbedder) *SourceTools {
	return &SourceTools{index: index, embedder: embedder, Logger: slog.Default()}
}

func (t *SourceTools) Name() string {
	return "source_tools"
}

func (t *SourceTools) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchSourcesArgs, SearchSourcesResp](
		functiontool.Config{
			Name:        "search_sources",
			Description: "Semantic search over the sources collected by research runs.",
		},
		func(ctx tool.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
			return t.SearchSources(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search_sources tool: %w", err)
	}

	findTool, err := functiontool.New[FindSourceArgs, FindSourceResp](
		functiontool.Config{
			Name:        "find_source",
			Description: "Return every stored chunk of one source URL, in order.",
		},
		func(ctx tool.Context, args FindSourceArgs) (FindSourceResp, error) {
			return t.FindSource(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_source tool: %w", err)
	}

	filterTool, err := functiontool.New[FilterSourcesArgs, FindSourceResp](
		functiontool.Config{
			Name:        "filter_sources",
			Description: "Find chunks whose metadata (source, title, query) matches a filter with $and, $or and $not.",
		},
		func(ctx tool.Context, args FilterSourcesArgs) (FindSourceResp, error) {
			return t.FilterSources(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter_sources tool: %w", err)
	}

	return []tool.Tool{searchTool, findTool, filterTool}, nil
}

type SearchSourcesArgs struct {
	Query  string `json:"query" jsonschema:"The search query"`
	TopK   int    `json:"topK,omitempty" jsonschema:"Number of results to return (default 5)"`
	Source string `json:"source,omitempty" jsonschema:"Only search chunks of this source URL"`
}

type SearchSourcesResp struct {
	Results string `json:"results"`
}

// SearchSources embeds the query and returns the closest chunks.
func (t *SourceTools) SearchSources(ctx context.Context, args SearchSourcesArgs) (SearchSourcesResp, error) {
	if strings.TrimSpace(args.Query) == "" {
		return SearchSourcesResp{}, fmt.Errorf("query is required")
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}
	t.Logger.Info("Search sources", "query", args.Query, "topK", args.TopK, "source", args.Source)

	embedding, err := t.embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter map[string]any
	if args.Source != "" {
		filter = map[string]any{"source": args.Source}
	}
	matches, err := t.index.Search(ctx, embedding, args.TopK, filter)
	if err != nil {
		return SearchSourcesResp{}, fmt.Errorf("failed to search: %w", err)
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, fmt.Sprintf("%s\n[Score]: %.3f", formatChunk(m.Chunk), m.Score))
	}
	return SearchSourcesResp{Results: strings.Join(parts, "\n\n")}, nil
}

type FindSourceArgs struct {
	Source string `json:"source" jsonschema:"The source URL"`
}

type FindSourceResp struct {
	Content string `json:"content"`
}

// FindSource returns the stored text of one source.
func (t *SourceTools) FindSource(ctx context.Context, args FindSourceArgs) (FindSourceResp, error) {
	if strings.TrimSpace(args.Source) == "" {
		return FindSourceResp{}, fmt.Errorf("source is required")
	}
	chunks, err := t.index.Find(ctx, map[string]any{"source": args.Source})
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to find source: %w", err)
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	return FindSourceResp{Content: strings.Join(texts, "\n\n")}, nil
}

type FilterSourcesArgs struct {
	Filter map[string]any `json:"filter" jsonschema:"Metadata filter with logical operators ($and, $or, $not)"`
}

// FilterSources returns chunks matching a metadata filter.
func (t *SourceTools) FilterSources(ctx context.Context, args FilterSourcesArgs) (FindSourceResp, error) {
	chunks, err := t.index.Find(ctx, args.Filter)
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to filter sources: %w", err)
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, formatChunk(c))
	}
	return FindSourceResp{Content: strings.Join(parts, "\n\n")}, nil
}

func formatChunk(c vectorstore.Chunk) string {
	var sb strings.Builder
	source, _ := c.Metadata["source"].(string)
	if source == "" {
		source = "unknown"
	}
	fmt.Fprintf(&sb, "[Source]: %s", source)
	if title, _ := c.Metadata["title"].(string); title != "" {
		fmt.Fprintf(&sb, "\n[Title]: %s", title)
	}
	if query, _ := c.Metadata["query"].(string); query != "" {
		fmt.Fprintf(&sb, "\n[Query]: %s", query)
	}
	fmt.Fprintf(&sb, "\n[Content]: %s", c.Content)
	return sb.String()
}
