package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockin-app/lockin-rag/internal/core/ingest"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// newTestPool はpgvector拡張の入ったPostgreSQLへの接続を返す
// TEST_DATABASE_URLが未設定の場合はテストをスキップする
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(context.Background(), pool, DefaultEmbeddingDimension))
	return pool
}

func makeVector(fill float32) []float32 {
	v := make([]float32, 1536)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestResourceRepository_CRUD(t *testing.T) {
	pool := newTestPool(t)
	repo := NewResourceRepository(pool)
	ctx := context.Background()

	now := time.Now()
	r := &resource.Resource{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		URL:       "https://example.com/article",
		Type:      resource.TypeArticle,
		Title:     "https://example.com/article",
		Tags:      []string{"go"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, r))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), r.ID) })

	opt, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	got, ok := opt.Get()
	require.True(t, ok)
	assert.Equal(t, r.Title, got.Title)
	assert.Equal(t, []string{"go"}, got.Tags)
	assert.Nil(t, got.IndexedAt)

	updated, err := repo.Update(ctx, r.ID, resource.Update{
		Title:      resource.Ptr("Real Title"),
		Difficulty: resource.Ptr(resource.DifficultyBeginner),
	})
	require.NoError(t, err)
	assert.Equal(t, "Real Title", updated.Title)
	assert.Equal(t, resource.DifficultyBeginner, updated.Difficulty)

	list, err := repo.List(ctx, resource.ListFilter{UserID: r.UserID})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, r.ID))
	opt, err = repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, opt.IsAbsent())
}

func TestChunkRepository_ReplaceAndSearch(t *testing.T) {
	pool := newTestPool(t)
	resources := NewResourceRepository(pool)
	chunks := NewChunkRepository(pool)
	ctx := context.Background()

	userID := uuid.New()
	now := time.Now()
	r := &resource.Resource{
		ID:        uuid.New(),
		UserID:    userID,
		URL:       "https://example.com/goroutines",
		Type:      resource.TypeArticle,
		Title:     "Goroutines Guide",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, resources.Create(ctx, r))
	t.Cleanup(func() { _ = resources.Delete(context.Background(), r.ID) })

	stored := []*ingest.StoredChunk{
		{ResourceID: r.ID, SequenceIndex: 0, Text: "goroutines are lightweight", TokenCount: 4, Embedding: makeVector(0.1)},
		{ResourceID: r.ID, SequenceIndex: 1, Text: "channels synchronize goroutines", TokenCount: 3, Embedding: makeVector(0.2)},
	}
	require.NoError(t, chunks.ReplaceChunks(ctx, r.ID, stored))

	// 同じリソースの再投入は既存チャンクを置き換える
	require.NoError(t, chunks.ReplaceChunks(ctx, r.ID, stored[:1]))

	results, err := chunks.Search(ctx, userID, makeVector(0.1), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, r.ID, results[0].ResourceID)
	assert.Equal(t, "Goroutines Guide", results[0].ResourceTitle)
	assert.InDelta(t, 1.0, results[0].Score, 0.01)

	// 他ユーザーの検索には出てこない
	other, err := chunks.Search(ctx, uuid.New(), makeVector(0.1), 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, chunks.DeleteChunksByResource(ctx, r.ID))
	results, err = chunks.Search(ctx, userID, makeVector(0.1), 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
