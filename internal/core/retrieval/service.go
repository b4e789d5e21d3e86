package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Embedder は質問文のベクトル化を担うインターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchRepository はベクトルストアへの近傍検索を担うインターフェース
type SearchRepository interface {
	// Search は指定ユーザーのリソース全体から近傍チャンクを返す
	// 結果は関連度降順で、スコアによる絞り込みは呼び出し側が行う
	Search(ctx context.Context, userID uuid.UUID, queryVector []float32, limit int) ([]*RetrievedChunk, error)
}

// Config は検索エンジンのチューニング値
type Config struct {
	MaxChunks         int     // 1回の検索で返すチャンク数の上限
	MinRelevanceScore float64 // 採用する最小関連度スコア
	MaxContextChunks  int     // 1回の回答サイクルで使うチャンク総数の上限
}

// DefaultConfig は既定の検索設定を返す
func DefaultConfig() *Config {
	return &Config{
		MaxChunks:         5,
		MinRelevanceScore: 0.5,
		MaxContextChunks:  10,
	}
}

// Engine は質問文からの近傍チャンク検索を提供する
type Engine struct {
	embedder Embedder
	repo     SearchRepository
	config   *Config
	logger   *slog.Logger
}

type engineOptions struct {
	config *Config
	logger *slog.Logger
}

// EngineOption は Engine のオプション設定
type EngineOption func(*engineOptions)

// WithEngineConfig は検索設定を上書きする
func WithEngineConfig(config *Config) EngineOption {
	return func(o *engineOptions) {
		o.config = config
	}
}

// WithEngineLogger は Engine にロガーを設定する
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine は新しいEngineを作成する
func NewEngine(embedder Embedder, repo SearchRepository, opts ...EngineOption) *Engine {
	options := engineOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Engine{
		embedder: embedder,
		repo:     repo,
		config:   options.config,
		logger:   options.logger,
	}
}

// Retrieve は質問をベクトル化して関連チャンクを検索する
//
// 最小関連度スコア未満のチャンクは採用せず、件数は上限までに切り詰める。
// 絞り込みの結果が空でも検索は成功として空の結果を返す。回答段階が
// 「情報不足」の応答に切り替える判断を行う
func (e *Engine) Retrieve(ctx context.Context, userID uuid.UUID, question string) (*Result, error) {
	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	// スコアで落ちる分を見込んで上限より広めに取得する
	candidates, err := e.repo.Search(ctx, userID, queryVector, e.config.MaxChunks*3)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	filtered := make([]*RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= e.config.MinRelevanceScore {
			filtered = append(filtered, c)
		}
	}

	sortByRelevance(filtered)

	if len(filtered) > e.config.MaxChunks {
		filtered = filtered[:e.config.MaxChunks]
	}

	e.logger.Debug("retrieval completed",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(filtered)),
	)

	return &Result{Chunks: filtered}, nil
}

// Combine は複数回の検索結果を1つの回答サイクル用にまとめる
// 合計件数はコンテキストチャンク総数の上限を超えない
func (e *Engine) Combine(results ...*Result) *Result {
	var merged []*RetrievedChunk
	seen := make(map[uuid.UUID]struct{})
	for _, r := range results {
		for _, c := range r.Chunks {
			if _, ok := seen[c.ChunkID]; ok {
				continue
			}
			seen[c.ChunkID] = struct{}{}
			merged = append(merged, c)
		}
	}

	sortByRelevance(merged)

	if len(merged) > e.config.MaxContextChunks {
		merged = merged[:e.config.MaxContextChunks]
	}
	return &Result{Chunks: merged}
}

// sortByRelevance は関連度降順、同点ならリソースの新しい順に並べる
func sortByRelevance(chunks []*RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ResourceCreatedAt.After(chunks[j].ResourceCreatedAt)
	})
}
