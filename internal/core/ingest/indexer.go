package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/ingest/chunk"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

const (
	// maxAttempts はEmbedding取得と保存の最大試行回数
	maxAttempts = 3

	// attemptCeiling は全試行を通した時間の上限
	attemptCeiling = 5 * time.Minute

	// embedBatchSize はEmbedding APIへ1回で渡すテキスト数の上限
	embedBatchSize = 100
)

// defaultRetryDelays は失敗後の待機時間（手調整の指数的バックオフ）
var defaultRetryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// SleepFunc は待機処理の差し替えポイント
// コンテキストのキャンセルで早期に打ち切れること
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Indexer はリソース本文をチャンク化してベクトルストアへ投入する
type Indexer struct {
	repo        resource.Repository
	chunker     Chunker
	embedder    Embedder
	vectorStore VectorStore
	retryDelays []time.Duration
	sleep       SleepFunc
	logger      *slog.Logger
}

type indexerOptions struct {
	retryDelays []time.Duration
	sleep       SleepFunc
	logger      *slog.Logger
}

// IndexerOption は Indexer のオプション設定
type IndexerOption func(*indexerOptions)

// WithIndexerLogger は Indexer にロガーを設定する
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(o *indexerOptions) {
		o.logger = logger
	}
}

// WithRetryDelays はリトライの待機時間を上書きする
func WithRetryDelays(delays []time.Duration) IndexerOption {
	return func(o *indexerOptions) {
		o.retryDelays = delays
	}
}

// WithSleepFunc は待機処理を差し替える
func WithSleepFunc(sleep SleepFunc) IndexerOption {
	return func(o *indexerOptions) {
		o.sleep = sleep
	}
}

// NewIndexer は新しいIndexerを作成する
func NewIndexer(
	repo resource.Repository,
	chunker Chunker,
	embedder Embedder,
	vectorStore VectorStore,
	opts ...IndexerOption,
) *Indexer {
	options := indexerOptions{
		retryDelays: defaultRetryDelays,
		sleep:       defaultSleep,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Indexer{
		repo:        repo,
		chunker:     chunker,
		embedder:    embedder,
		vectorStore: vectorStore,
		retryDelays: options.retryDelays,
		sleep:       options.sleep,
		logger:      options.logger,
	}
}

// Index はリソースをチャンク化・ベクトル化して保存する
//
// 一時的な失敗は待機を挟んで最大3回まで試行し、全試行で失敗した場合は
// ログに残してリソースを未インデックスのまま残す。検索に出てこないだけで
// リソース自体は閲覧可能なので、この失敗は呼び出し元へは伝播しない。
func (idx *Indexer) Index(ctx context.Context, resourceID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, attemptCeiling)
	defer cancel()

	opt, err := idx.repo.GetByID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to load resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return resource.ErrNotFound
	}

	if r.ContentText == "" {
		idx.logger.Info("resource has no content to index",
			slog.String("resourceID", resourceID.String()),
		)
		return nil
	}

	chunks := idx.chunker.Chunk(r.ContentText)
	if len(chunks) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = idx.embedAndStore(ctx, r, chunks)
		if lastErr == nil {
			now := time.Now()
			if _, err := idx.repo.Update(ctx, resourceID, resource.Update{
				IndexedAt: resource.Ptr[*time.Time](&now),
			}); err != nil {
				return fmt.Errorf("failed to mark resource indexed: %w", err)
			}
			idx.logger.Info("resource indexed",
				slog.String("resourceID", resourceID.String()),
				slog.Int("chunks", len(chunks)),
			)
			return nil
		}

		idx.logger.Warn("indexing attempt failed",
			slog.String("resourceID", resourceID.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", lastErr.Error()),
		)

		if attempt < len(idx.retryDelays) {
			if err := idx.sleep(ctx, idx.retryDelays[attempt]); err != nil {
				lastErr = err
				break
			}
		}
	}

	// 最終失敗: リソースは未インデックスのまま残す
	idx.logger.Error("indexing failed permanently",
		slog.String("resourceID", resourceID.String()),
		slog.String("error", lastErr.Error()),
	)
	return nil
}

// embedAndStore は全チャンクのベクトルを取得してストアを置き換える
func (idx *Indexer) embedAndStore(ctx context.Context, r *resource.Resource, chunks []chunk.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := idx.embedder.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		embeddings = append(embeddings, batch...)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(chunks))
	}

	stored := make([]*StoredChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = &StoredChunk{
			ResourceID:    r.ID,
			SequenceIndex: c.Index,
			Text:          c.Text,
			TokenCount:    c.TokenCount,
			Embedding:     embeddings[i],
		}
	}

	if err := idx.vectorStore.ReplaceChunks(ctx, r.ID, stored); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}
