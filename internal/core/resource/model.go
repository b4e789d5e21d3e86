package resource

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type は学習リソースの種別
type Type string

const (
	TypeArticle       Type = "article"
	TypeVideo         Type = "video"
	TypeDocument      Type = "document"
	TypeImage         Type = "image"
	TypeWebsite       Type = "website"
	TypeDocumentation Type = "documentation"
)

// Difficulty はリソースの難易度
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// KnownDifficulties は分類結果として受け入れる難易度の一覧
var KnownDifficulties = []Difficulty{
	DifficultyBeginner,
	DifficultyIntermediate,
	DifficultyAdvanced,
}

// ParseDifficulty は文字列を既知の難易度へ正規化する
// 未知の値は空文字列（未設定）として扱う
func ParseDifficulty(s string) Difficulty {
	normalized := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	for _, d := range KnownDifficulties {
		if normalized == d {
			return d
		}
	}
	return ""
}

// Resource はユーザーが保存した学習リソースを表す
// URL由来（記事・動画など）とファイル由来（アップロード）の両方を扱う
type Resource struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	URL      string // ファイル由来の場合は空
	FilePath string // URL由来の場合は空

	Type                 Type
	Title                string
	Summary              string
	ContentText          string // 検索用の抽出済み本文
	ThumbnailURL         string
	SourceDomain         string
	Tags                 []string // 常に小文字で保持
	Difficulty           Difficulty
	EstimatedTimeMinutes int
	Notes                string

	IsRead     bool
	IsFavorite bool
	IsArchived bool

	// IndexedAt はベクトルインデックス化が完了した時刻
	// 未インデックスの間はnil
	IndexedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsIndexed はベクトルインデックス化が完了しているかを返す
func (r *Resource) IsIndexed() bool {
	return r.IndexedAt != nil
}

// NormalizeTags はタグを小文字化・トリム・重複排除して返す
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

// Update は部分更新を表す
// nilのフィールドは「変更しない」を意味し、各エンリッチ段階は
// 自分が決定したフィールドだけを設定して返す
type Update struct {
	Type                 *Type
	Title                *string
	Summary              *string
	ContentText          *string
	ThumbnailURL         *string
	SourceDomain         *string
	Tags                 *[]string
	Difficulty           *Difficulty
	EstimatedTimeMinutes *int
	Notes                *string
	IsRead               *bool
	IsFavorite           *bool
	IsArchived           *bool
	IndexedAt            **time.Time
}

// IsEmpty は更新対象フィールドが1つもないかを返す
func (u Update) IsEmpty() bool {
	return u.Type == nil && u.Title == nil && u.Summary == nil &&
		u.ContentText == nil && u.ThumbnailURL == nil && u.SourceDomain == nil &&
		u.Tags == nil && u.Difficulty == nil && u.EstimatedTimeMinutes == nil &&
		u.Notes == nil && u.IsRead == nil && u.IsFavorite == nil &&
		u.IsArchived == nil && u.IndexedAt == nil
}

// Apply は更新内容をリソースへ反映する
// タグは反映時に正規化される
func (u Update) Apply(r *Resource) {
	if u.Type != nil {
		r.Type = *u.Type
	}
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Summary != nil {
		r.Summary = *u.Summary
	}
	if u.ContentText != nil {
		r.ContentText = *u.ContentText
	}
	if u.ThumbnailURL != nil {
		r.ThumbnailURL = *u.ThumbnailURL
	}
	if u.SourceDomain != nil {
		r.SourceDomain = *u.SourceDomain
	}
	if u.Tags != nil {
		r.Tags = NormalizeTags(*u.Tags)
	}
	if u.Difficulty != nil {
		r.Difficulty = *u.Difficulty
	}
	if u.EstimatedTimeMinutes != nil {
		r.EstimatedTimeMinutes = *u.EstimatedTimeMinutes
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
	if u.IsRead != nil {
		r.IsRead = *u.IsRead
	}
	if u.IsFavorite != nil {
		r.IsFavorite = *u.IsFavorite
	}
	if u.IsArchived != nil {
		r.IsArchived = *u.IsArchived
	}
	if u.IndexedAt != nil {
		r.IndexedAt = *u.IndexedAt
	}
}

// ヘルパー（Update構築用）

func Ptr[T any](v T) *T { return &v }
