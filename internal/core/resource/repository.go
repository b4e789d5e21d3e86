package resource

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ErrNotFound は指定リソースが存在しない場合のエラー
var ErrNotFound = errors.New("resource not found")

// ListFilter はリソース一覧の絞り込み条件
type ListFilter struct {
	UserID     uuid.UUID
	Type       mo.Option[Type]
	Tag        mo.Option[string]
	IsArchived mo.Option[bool]
	Limit      int
	Offset     int
}

// Repository はリソースの永続化を担うインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (mo.Option[*Resource], error)
	List(ctx context.Context, filter ListFilter) ([]*Resource, error)
	Create(ctx context.Context, r *Resource) error
	Update(ctx context.Context, id uuid.UUID, update Update) (*Resource, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChunkDeleter はリソース削除時に対応するベクトルチャンクを消すための
// 最小インターフェース
type ChunkDeleter interface {
	DeleteChunksByResource(ctx context.Context, resourceID uuid.UUID) error
}
