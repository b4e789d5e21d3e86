package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enqueuer はリソース作成・更新の後続処理を依頼するインターフェース
// 各段階は次段階の入力をメッセージとして投入するだけで、
// 進行中の処理状態を相互に参照しない
type Enqueuer interface {
	EnqueueEnrich(resourceID uuid.UUID)
	EnqueueIndex(resourceID uuid.UUID)
	EnqueueClassify(resourceID uuid.UUID)
}

// Service はリソースのCRUDユースケースを提供する
type Service struct {
	repo         Repository
	chunkDeleter ChunkDeleter
	enqueuer     Enqueuer
	logger       *slog.Logger
}

type serviceOptions struct {
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, chunkDeleter ChunkDeleter, enqueuer Enqueuer, opts ...ServiceOption) *Service {
	options := serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		repo:         repo,
		chunkDeleter: chunkDeleter,
		enqueuer:     enqueuer,
		logger:       options.logger,
	}
}

// CreateFromURLParams はURL由来リソースの作成パラメータ
type CreateFromURLParams struct {
	UserID uuid.UUID
	URL    string
	Title  string // 省略時はURLをそのまま仮タイトルにする
	Notes  string
	Tags   []string
}

// CreateFromURL はURLから最小限のデータでリソースを即時作成し、
// メタデータ補完をキューに投入する
//
// タイトルが未指定の場合はURL自体を仮タイトルとして保存する。
// エンリッチ段階は title == url を「仮タイトルのまま」のシグナルとして
// 扱い、取得したメタデータのタイトルで置き換える。
func (s *Service) CreateFromURL(ctx context.Context, params CreateFromURLParams) (*Resource, error) {
	if params.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	title := params.Title
	if title == "" {
		title = params.URL
	}

	now := time.Now()
	r := &Resource{
		ID:           uuid.New(),
		UserID:       params.UserID,
		URL:          params.URL,
		Type:         guessTypeFromURL(params.URL),
		Title:        title,
		SourceDomain: extractDomain(params.URL),
		Tags:         NormalizeTags(params.Tags),
		Notes:        params.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	s.enqueuer.EnqueueEnrich(r.ID)

	s.logger.Info("resource created from url",
		slog.String("resourceID", r.ID.String()),
		slog.String("type", string(r.Type)),
		slog.String("domain", r.SourceDomain),
	)

	return r, nil
}

// CreateFromFileParams はファイル由来リソースの作成パラメータ
type CreateFromFileParams struct {
	UserID    uuid.UUID
	FilePath  string
	FileName  string
	SizeBytes int64
	Content   string // 抽出済み本文（抽出不能なファイルは空）
	Notes     string
	Tags      []string
}

// CreateFromFile はアップロードされたファイルからリソースを作成する
// ドキュメント類は概算でサイズ100KBあたり1分の所要時間を設定する
func (s *Service) CreateFromFile(ctx context.Context, params CreateFromFileParams) (*Resource, error) {
	if params.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	resourceType := guessTypeFromExtension(params.FileName)

	estimatedMinutes := 0
	if resourceType == TypeDocument {
		sizeKB := params.SizeBytes / 1024
		estimatedMinutes = int((sizeKB + 99) / 100)
		if estimatedMinutes < 1 {
			estimatedMinutes = 1
		}
	}

	now := time.Now()
	r := &Resource{
		ID:                   uuid.New(),
		UserID:               params.UserID,
		FilePath:             params.FilePath,
		Type:                 resourceType,
		Title:                params.FileName,
		ContentText:          params.Content,
		Tags:                 NormalizeTags(params.Tags),
		EstimatedTimeMinutes: estimatedMinutes,
		Notes:                params.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// ファイル由来はメタデータ取得が不要なので分類へ直行し、
	// 本文があればインデックス化も投入する
	if r.ContentText != "" {
		s.enqueuer.EnqueueIndex(r.ID)
	}
	s.enqueuer.EnqueueClassify(r.ID)

	s.logger.Info("resource created from file",
		slog.String("resourceID", r.ID.String()),
		slog.String("type", string(r.Type)),
		slog.Int64("sizeBytes", params.SizeBytes),
	)

	return r, nil
}

// Get はIDでリソースを取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Resource, error) {
	opt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// List は条件に合致するリソースの一覧を返す
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Resource, error) {
	resources, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// UpdateFields はリソースの部分更新を行う
// 本文が変わった場合は再インデックスを投入する
func (s *Service) UpdateFields(ctx context.Context, id uuid.UUID, update Update) (*Resource, error) {
	if update.IsEmpty() {
		return s.Get(ctx, id)
	}

	updated, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}

	if update.ContentText != nil && *update.ContentText != "" {
		s.enqueuer.EnqueueIndex(id)
	}

	return updated, nil
}

// ToggleFavorite はお気に入りフラグを反転する
func (s *Service) ToggleFavorite(ctx context.Context, id uuid.UUID) (*Resource, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, Update{IsFavorite: Ptr(!r.IsFavorite)})
}

// MarkAsRead は既読フラグを設定する
func (s *Service) MarkAsRead(ctx context.Context, id uuid.UUID, isRead bool) (*Resource, error) {
	return s.repo.Update(ctx, id, Update{IsRead: Ptr(isRead)})
}

// Delete はリソースと対応するベクトルチャンクを削除する
// チャンクを先に消すことで、削除途中に失敗しても孤児チャンクが残らない
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.chunkDeleter.DeleteChunksByResource(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resource chunks: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	s.logger.Info("resource deleted", slog.String("resourceID", id.String()))
	return nil
}

// BulkImport は複数URLをまとめて登録する
// 個々の失敗は記録して続行し、成功したリソースだけを返す
func (s *Service) BulkImport(ctx context.Context, userID uuid.UUID, urls []string) ([]*Resource, error) {
	results := make([]*Resource, 0, len(urls))
	for _, u := range urls {
		r, err := s.CreateFromURL(ctx, CreateFromURLParams{UserID: userID, URL: u})
		if err != nil {
			s.logger.Warn("bulk import entry failed",
				slog.String("url", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// guessTypeFromURL はURLからリソース種別を推定する
// 確定的な判定はエンリッチ段階がメタデータから行うため、ここは暫定値
func guessTypeFromURL(rawURL string) Type {
	if strings.Contains(rawURL, "youtube.com") || strings.Contains(rawURL, "youtu.be") ||
		strings.Contains(rawURL, "vimeo.com") {
		return TypeVideo
	}
	return TypeArticle
}

// guessTypeFromExtension はファイル拡張子からリソース種別を判定する
func guessTypeFromExtension(fileName string) Type {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp":
		return TypeImage
	default:
		return TypeDocument
	}
}

// extractDomain はURLからwww.を除いたホスト名を取り出す
func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}
