package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lockin-app/lockin-rag/internal/core/ingest"
	"github.com/lockin-app/lockin-rag/internal/core/retrieval"
)

const (
	// DefaultTTL はキャッシュエントリの保持期間
	DefaultTTL = time.Hour

	keyPrefix = "emb:"
)

// Embedder はキャッシュ対象となるEmbedding生成のインターフェース
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	_ ingest.Embedder    = (*EmbeddingCache)(nil)
	_ retrieval.Embedder = (*EmbeddingCache)(nil)
)

// EmbeddingCache はEmbedding生成をRedisでキャッシュするデコレータ
//
// キーはモデル名とテキストのSHA-256で、同一テキストのAPI呼び出しを
// TTLの間1回に抑える。Redis障害時はログを残して素通しする。
type EmbeddingCache struct {
	inner  Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

type cacheOptions struct {
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*cacheOptions)

// WithCacheTTL はキャッシュエントリの保持期間を設定する
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) {
		o.ttl = ttl
	}
}

// WithCacheLogger はロガーを設定する
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = logger
	}
}

// NewEmbeddingCache はEmbeddingCacheを生成し、Redisへの疎通を確認する
func NewEmbeddingCache(ctx context.Context, inner Embedder, addr, password string, db int, model string, opts ...CacheOption) (*EmbeddingCache, error) {
	options := &cacheOptions{
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &EmbeddingCache{
		inner:  inner,
		client: client,
		model:  model,
		ttl:    options.ttl,
		logger: options.logger,
	}, nil
}

// Close はRedis接続を閉じる
func (c *EmbeddingCache) Close() error {
	return c.client.Close()
}

// Embed は単一テキストのEmbeddingを返す
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.get(ctx, text); ok {
		return cached, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.set(ctx, text, vector)
	return vector, nil
}

// BatchEmbed は複数テキストのEmbeddingを返す
// キャッシュ済みのテキストを除いた残りだけをまとめて生成する
func (c *EmbeddingCache) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if cached, ok := c.get(ctx, text); ok {
			vectors[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	generated, err := c.inner.BatchEmbed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(missing) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(generated), len(missing))
	}

	for i, vector := range generated {
		vectors[missingIdx[i]] = vector
		c.set(ctx, missing[i], vector)
	}

	return vectors, nil
}

func (c *EmbeddingCache) get(ctx context.Context, text string) ([]float32, bool) {
	data, err := c.client.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		c.logger.Warn("embedding cache entry is corrupt", slog.String("error", err.Error()))
		return nil, false
	}
	return vector, true
}

func (c *EmbeddingCache) set(ctx context.Context, text string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(text), data, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + ":" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}
