package retrieval

import (
	"time"

	"github.com/google/uuid"
)

// RetrievedChunk は検索で得られた1チャンクとその関連度
type RetrievedChunk struct {
	ChunkID           uuid.UUID
	ResourceID        uuid.UUID
	ResourceTitle     string
	ResourceURL       string
	ResourceCreatedAt time.Time
	Text              string
	Score             float64 // コサイン類似度ベースの関連度（0-1）
}

// Result は1回の検索の結果
// Chunksが空でも検索自体は成功として扱う
type Result struct {
	Chunks []*RetrievedChunk
}

// IsEmpty はコンテキストとして使えるチャンクがないかを返す
func (r *Result) IsEmpty() bool {
	return len(r.Chunks) == 0
}
