package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/search"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter persists embedded chunks.
type ChunkWriter interface {
	Add(ctx context.Context, chunks []Chunk) error
}

// Indexer chunks, embeds and stores search results.
type Indexer struct {
	embedder Embedder
	writer   ChunkWriter
	splitter *splitter.TextSplitter
	Logger   *slog.Logger
}

// NewIndexer returns an Indexer splitting content into chunkSize runes.
func NewIndexer(embedder Embedder, writer ChunkWriter, chunkSize, chunkOverlap int) *Indexer {
	return &Indexer{
		embedder: embedder,
		writer:   writer,
		splitter: splitter.NewRecursiveCharacterTextSplitter(chunkSize, chunkOverlap),
		Logger:   slog.Default(),
	}
}

// IndexSources stores every result of query. Results failing to split or
// embed are skipped; the first storage error is returned.
func (ix *Indexer) IndexSources(ctx context.Context, query string, results []search.Result) error {
	var chunks []Chunk
	for _, r := range results {
		parts, err := ix.splitter.SplitText(r.Content)
		if err != nil {
			ix.Logger.Warn("Failed to split source", "url", r.URL, "error", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		vectors, err := ix.embedder.EmbedTexts(ctx, parts)
		if err != nil {
			ix.Logger.Warn("Failed to embed source", "url", r.URL, "error", err)
			continue
		}
		if len(vectors) != len(parts) {
			ix.Logger.Warn("Embedding count mismatch", "url", r.URL, "chunks", len(parts), "vectors", len(vectors))
			continue
		}

		for i, p := range parts {
			chunks = append(chunks, Chunk{
				Content: p,
				Metadata: map[string]any{
					"source": r.URL,
					"title":  r.Title,
					"query":  query,
					"chunk":  i,
				},
				Embedding: vectors[i],
			})
		}
	}

	if len(chunks) == 0 {
		return nil
	}
	if err := ix.writer.Add(ctx, chunks); err != nil {
		return fmt.Errorf("failed to store %d chunks: %w", len(chunks), err)
	}
	ix.Logger.Debug("Indexed sources", "query", query, "chunks", len(chunks))
	return nil
}
