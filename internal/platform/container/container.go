package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/answer"
	"github.com/lockin-app/lockin-rag/internal/core/assist"
	"github.com/lockin-app/lockin-rag/internal/core/classify"
	"github.com/lockin-app/lockin-rag/internal/core/enrich"
	"github.com/lockin-app/lockin-rag/internal/core/ingest"
	"github.com/lockin-app/lockin-rag/internal/core/ingest/chunk"
	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
	"github.com/lockin-app/lockin-rag/internal/core/retrieval"
	"github.com/lockin-app/lockin-rag/internal/core/security"
	"github.com/lockin-app/lockin-rag/internal/infra/fileparse"
	"github.com/lockin-app/lockin-rag/internal/infra/openai"
	"github.com/lockin-app/lockin-rag/internal/infra/postgres"
	"github.com/lockin-app/lockin-rag/internal/infra/rediscache"
	"github.com/lockin-app/lockin-rag/internal/infra/video"
	"github.com/lockin-app/lockin-rag/internal/infra/webmeta"
	"github.com/lockin-app/lockin-rag/internal/interface/api"
	"github.com/lockin-app/lockin-rag/internal/platform/config"
	"github.com/lockin-app/lockin-rag/internal/platform/database"
	"github.com/lockin-app/lockin-rag/internal/platform/queue"
)

// Container はアプリケーション全体の依存関係を保持する
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Database *database.DB
	Queue    *queue.Queue

	ResourceService *resource.Service
	EnrichService   *enrich.Service
	Indexer         *ingest.Indexer
	ClassifyService *classify.Service
	Retrieval       *retrieval.Engine
	Composer        *answer.Composer
	Checklist       *assist.ChecklistService

	// Router はHTTP APIのエントリポイント
	Router http.Handler

	embeddingCache *rediscache.EmbeddingCache
}

// New は設定からすべての依存を組み立てる
//
// スキーマの適用とワーカープールの起動まで行うため、
// 返されたコンテナはそのまま利用できる状態になっている。
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := postgres.Migrate(ctx, db.Pool, cfg.OpenAI.EmbeddingDimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	resourceRepo := postgres.NewResourceRepository(db.Pool)
	chunkRepo := postgres.NewChunkRepository(db.Pool)

	chatClient, err := openai.NewChatClient(cfg.OpenAI.APIKey, openai.WithChatModel(cfg.OpenAI.LLMModel))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize chat client: %w", err)
	}

	embedder, err := openai.NewEmbedder(
		cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Database: db,
	}

	// Embeddingキャッシュは設定されている場合のみ挟む
	// Redisへ接続できない場合はキャッシュなしで続行する
	var ingestEmbedder ingest.Embedder = embedder
	var queryEmbedder retrieval.Embedder = embedder
	if cfg.RAG.CacheEmbeddings && cfg.Redis.Addr != "" {
		cache, err := rediscache.NewEmbeddingCache(
			ctx,
			embedder,
			cfg.Redis.Addr,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.OpenAI.EmbeddingModel,
			rediscache.WithCacheTTL(time.Duration(cfg.RAG.CacheTTLSeconds)*time.Second),
			rediscache.WithCacheLogger(logger),
		)
		if err != nil {
			logger.Warn("embedding cache is unavailable, continuing without cache",
				slog.String("error", err.Error()),
			)
		} else {
			c.embeddingCache = cache
			ingestEmbedder = cache
			queryEmbedder = cache
		}
	}

	tokenizer, err := chunk.NewTiktokenTokenizer()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	chunker := chunk.NewChunker(tokenizer, &chunk.Config{
		TargetTokens:  cfg.RAG.ChunkTargetTokens,
		MinTokens:     cfg.RAG.ChunkMinTokens,
		OverlapTokens: cfg.RAG.ChunkOverlapTokens,
	})

	detector, err := security.NewDetector(cfg.RAG.BlockedPatterns)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize injection detector: %w", err)
	}
	guard := security.NewService(detector, cfg.RAG.MaxQuestionLength, security.WithLogger(logger))

	builder := prompt.NewBuilder()
	pageFetcher := webmeta.NewFetcher(webmeta.WithFetcherLogger(logger))
	videoClient := video.NewClient(cfg.YouTubeAPIKey, video.WithClientLogger(logger))

	c.Queue = queue.New(queue.WithQueueLogger(logger))

	c.ResourceService = resource.NewService(resourceRepo, chunkRepo, c.Queue, resource.WithServiceLogger(logger))
	c.EnrichService = enrich.NewService(resourceRepo, pageFetcher, videoClient, chatClient, c.Queue, enrich.WithEnrichLogger(logger))
	c.Indexer = ingest.NewIndexer(resourceRepo, chunker, ingestEmbedder, chunkRepo, ingest.WithIndexerLogger(logger))
	c.ClassifyService = classify.NewService(resourceRepo, builder, chatClient, classify.WithClassifyLogger(logger))
	c.Retrieval = retrieval.NewEngine(queryEmbedder, chunkRepo,
		retrieval.WithEngineConfig(&retrieval.Config{
			MaxChunks:         cfg.RAG.MaxChunks,
			MinRelevanceScore: cfg.RAG.MinRelevanceScore,
			MaxContextChunks:  cfg.RAG.MaxContextChunks,
		}),
		retrieval.WithEngineLogger(logger),
	)
	c.Composer = answer.NewComposer(guard, c.Retrieval, builder, chatClient, answer.WithComposerLogger(logger))
	c.Checklist = assist.NewChecklistService(builder, chatClient, assist.WithChecklistLogger(logger))

	c.Queue.Register(queue.KindEnrich, c.EnrichService.Enrich)
	c.Queue.Register(queue.KindIndex, c.Indexer.Index)
	c.Queue.Register(queue.KindClassify, func(ctx context.Context, resourceID uuid.UUID) error {
		if _, err := c.ClassifyService.Classify(ctx, resourceID); err != nil {
			return err
		}
		// メタデータ生成がタイトルを埋めなかった場合の専用フォールバック
		_, err := c.ClassifyService.GenerateTitle(ctx, resourceID)
		return err
	})
	c.Queue.Start(ctx)

	handler := api.NewHandler(c.ResourceService, c.Composer, c.Checklist, fileparse.NewParser(),
		api.WithHandlerLogger(logger),
		api.WithMaxQuestionLength(cfg.RAG.MaxQuestionLength),
	)
	c.Router = api.NewRouter(handler)

	return c, nil
}

// Close は保持しているリソースを解放する
// キューを先に止めて実行中のタスクを完了させてからDB接続を閉じる
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Shutdown()
	}
	if c.embeddingCache != nil {
		if err := c.embeddingCache.Close(); err != nil {
			c.Logger.Warn("failed to close embedding cache", slog.String("error", err.Error()))
		}
	}
	if c.Database != nil {
		c.Database.Close()
	}
}
