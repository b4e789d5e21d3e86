package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/ingest/chunk"
)

// StoredChunk はベクトルストアへ保存する1チャンクを表す
type StoredChunk struct {
	ResourceID    uuid.UUID
	SequenceIndex int
	Text          string
	TokenCount    int
	Embedding     []float32
}

// Chunker はテキストのチャンク分割を担うインターフェース
type Chunker interface {
	Chunk(text string) []chunk.Chunk
}

// Embedder はEmbeddingベクトルの取得を担うインターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのベクトルを一括取得する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore はチャンクの永続化を担うインターフェース
type VectorStore interface {
	// ReplaceChunks は既存チャンクを削除して新しいチャンク列で置き換える
	// 1リソース分の置き換えは原子的に行われる
	ReplaceChunks(ctx context.Context, resourceID uuid.UUID, chunks []*StoredChunk) error
}
