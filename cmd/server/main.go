package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/server"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	gen, err := clients.Generator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	provider, err := clients.SearchProvider(cfg)
	if err != nil {
		return err
	}

	var engineOpts []research.EngineOption
	tools, chatSvc, indexer := sourceIndex(ctx, cfg, db, logger)
	if indexer != nil {
		engineOpts = append(engineOpts, research.WithIndexer(indexer))
	}

	opts := cfg.ResearchOptions()
	svc := server.NewService(db, func(l *slog.Logger) server.Researcher {
		return research.NewEngine(gen, provider, opts, slices.Concat(engineOpts, []research.EngineOption{research.WithLogger(l)})...)
	})
	svc.Logger = logger
	svc.DefaultStrategy = opts.Strategy

	handler := server.NewHandler(svc, chatSvc, server.NewMCPHandler(server.NewMCPServer(svc, tools)))

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposeHeaders:    []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: true,
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "strategy", opts.Strategy, "search", cfg.SearchProvider, "chat", chatSvc != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Research jobs did not stop in time", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// sourceIndex wires the pgvector collection. Chat and indexing are disabled
// when embeddings are unavailable.
func sourceIndex(ctx context.Context, cfg *config.Config, db *database.PostgresDB, logger *slog.Logger) (*chat.SourceTools, *chat.Service, *vectorstore.Indexer) {
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, embeddings.DefaultDimension)
	if err != nil {
		logger.Warn("Source index disabled", "error", err)
		return nil, nil, nil
	}
	store, err := vectorstore.NewStore(db.Pool, cfg.CollectionName)
	if err != nil {
		logger.Warn("Source index disabled", "error", err)
		return nil, nil, nil
	}
	if err := store.EnsureCollection(ctx, embedder.Dimension()); err != nil {
		logger.Warn("Source index disabled", "error", err)
		return nil, nil, nil
	}

	tools := chat.NewSourceTools(store, embedder)
	tools.Logger = logger

	chatSvc, err := chat.NewService(ctx, db, tools, cfg)
	if err != nil {
		logger.Warn("Chat disabled", "error", err)
		chatSvc = nil
	} else {
		chatSvc.Logger = logger
	}

	var indexer *vectorstore.Indexer
	if cfg.IndexSources {
		indexer = vectorstore.NewIndexer(embedder, store, cfg.ChunkSize, cfg.ChunkOverlap)
		indexer.Logger = logger
	}
	return tools, chatSvc, indexer
}
