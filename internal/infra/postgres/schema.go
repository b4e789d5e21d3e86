package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultEmbeddingDimension は埋め込み次元数の既定値
const DefaultEmbeddingDimension = 1536

// schemaTemplate はアプリケーションが必要とするテーブル定義
// pgvector拡張が有効なPostgreSQLを前提とし、埋め込みの次元数は
// 設定値をDDLへ展開する
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS resources (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	content_text TEXT NOT NULL DEFAULT '',
	thumbnail_url TEXT NOT NULL DEFAULT '',
	source_domain TEXT NOT NULL DEFAULT '',
	tags TEXT[] NOT NULL DEFAULT '{}',
	difficulty TEXT NOT NULL DEFAULT '',
	estimated_time_minutes INT NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
	is_archived BOOLEAN NOT NULL DEFAULT FALSE,
	indexed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_resources_user_id ON resources (user_id);
CREATE INDEX IF NOT EXISTS idx_resources_type ON resources (type);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	resource_id UUID NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
	sequence_index INT NOT NULL,
	text TEXT NOT NULL,
	token_count INT NOT NULL DEFAULT 0,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (resource_id, sequence_index)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_resource_id ON knowledge_chunks (resource_id);
`

// Migrate はスキーマを適用する
// すべてIF NOT EXISTSなので何度実行しても安全
//
// 次元数の変更は既存テーブルには反映されない。既にインデックス済みの
// 埋め込みがある状態で次元数を変える場合は再インデックスが必要
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimension int) error {
	if embeddingDimension <= 0 {
		embeddingDimension = DefaultEmbeddingDimension
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTemplate, embeddingDimension)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
