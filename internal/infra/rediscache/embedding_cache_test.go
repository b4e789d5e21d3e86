package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	embedCalls int
	batchCalls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.embedCalls++
	return []float32{float32(len(text)), 1.0}, nil
}

func (e *countingEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1.0}
	}
	return vectors, nil
}

// newTestCache はRedisへの接続が設定されている場合のみキャッシュを生成する
// TEST_REDIS_ADDRが未設定の場合はテストをスキップする
func newTestCache(t *testing.T, inner Embedder) *EmbeddingCache {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping integration test")
	}

	cache, err := NewEmbeddingCache(context.Background(), inner, addr, "", 0, "test-model", WithCacheTTL(time.Minute))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestEmbeddingCache_Embed(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newTestCache(t, inner)
	ctx := context.Background()

	// テスト間の衝突を避けるため一意なテキストを使う
	text := "goroutines " + uuid.NewString()

	first, err := cache.Embed(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.embedCalls)

	second, err := cache.Embed(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls, "2回目はキャッシュから返す")
}

func TestEmbeddingCache_BatchEmbed(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newTestCache(t, inner)
	ctx := context.Background()

	suffix := uuid.NewString()
	texts := []string{"alpha " + suffix, "beta " + suffix, "gamma " + suffix}

	first, err := cache.BatchEmbed(ctx, texts)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, inner.batchCalls)

	// 一部だけキャッシュ済みの場合は未キャッシュ分だけを生成する
	mixed := []string{texts[0], "delta " + suffix, texts[2]}
	second, err := cache.BatchEmbed(ctx, mixed)
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[2], second[2])
	assert.Equal(t, 2, inner.batchCalls)
}

func TestEmbeddingCache_Key(t *testing.T) {
	cache := &EmbeddingCache{model: "text-embedding-3-small"}

	a := cache.key("same text")
	b := cache.key("same text")
	c := cache.key("other text")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	other := &EmbeddingCache{model: "text-embedding-3-large"}
	assert.NotEqual(t, a, other.key("same text"), "モデルが違えばキーも変わる")
}
