package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/lockin-app/lockin-rag/internal/core/ingest"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
	"github.com/lockin-app/lockin-rag/internal/core/retrieval"
	"github.com/lockin-app/lockin-rag/internal/platform/database"
)

// ChunkRepository はベクトルチャンクの永続化と近傍検索を担う
// PostgreSQL + pgvector のリポジトリ。
type ChunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository は新しい ChunkRepository を返す。
func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

var (
	_ ingest.VectorStore         = (*ChunkRepository)(nil)
	_ retrieval.SearchRepository = (*ChunkRepository)(nil)
	_ resource.ChunkDeleter      = (*ChunkRepository)(nil)
)

// ReplaceChunks は1リソース分のチャンクを原子的に置き換える
// 削除と挿入を同一トランザクションで行い、途中失敗で欠損状態にならない
func (repo *ChunkRepository) ReplaceChunks(ctx context.Context, resourceID uuid.UUID, chunks []*ingest.StoredChunk) error {
	return database.Transact(ctx, repo.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM knowledge_chunks WHERE resource_id = $1`, resourceID); err != nil {
			return fmt.Errorf("failed to delete prior chunks: %w", err)
		}

		for _, c := range chunks {
			if _, err := tx.Exec(ctx, `
				INSERT INTO knowledge_chunks (resource_id, sequence_index, text, token_count, embedding)
				VALUES ($1, $2, $3, $4, $5)`,
				c.ResourceID, c.SequenceIndex, c.Text, c.TokenCount, pgvector.NewVector(c.Embedding),
			); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", c.SequenceIndex, err)
			}
		}
		return nil
	})
}

// DeleteChunksByResource はリソースに紐づく全チャンクを削除する
func (repo *ChunkRepository) DeleteChunksByResource(ctx context.Context, resourceID uuid.UUID) error {
	if _, err := repo.pool.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE resource_id = $1`, resourceID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Search は指定ユーザーのリソース全体からコサイン類似度で近傍チャンクを返す
// スコアは 1 - コサイン距離 で、1に近いほど関連が強い
func (repo *ChunkRepository) Search(ctx context.Context, userID uuid.UUID, queryVector []float32, limit int) ([]*retrieval.RetrievedChunk, error) {
	rows, err := repo.pool.Query(ctx, `
		SELECT
			c.id,
			c.resource_id,
			r.title,
			r.url,
			r.created_at,
			c.text,
			1 - (c.embedding <=> $1) AS score
		FROM knowledge_chunks c
		JOIN resources r ON r.id = c.resource_id
		WHERE r.user_id = $2
		ORDER BY score DESC, r.created_at DESC
		LIMIT $3`,
		pgvector.NewVector(queryVector), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search query failed: %w", err)
	}
	defer rows.Close()

	var results []*retrieval.RetrievedChunk
	for rows.Next() {
		var c retrieval.RetrievedChunk
		if err := rows.Scan(
			&c.ChunkID, &c.ResourceID, &c.ResourceTitle, &c.ResourceURL,
			&c.ResourceCreatedAt, &c.Text, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}
