package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// maxTitleLength はメタデータ由来タイトルの保存上限
const maxTitleLength = 250

// defaultArticleMinutes は記事に他のシグナルがない場合の既定所要時間
const defaultArticleMinutes = 5

// ChatClient はフォールバック分類で使うチャット補完のインターフェース
type ChatClient interface {
	Chat(ctx context.Context, messages []prompt.Message) (string, error)
}

// フォールバック分類の応答を解釈する正規表現
// 2つは独立しており、片方だけマッチしても採用する
var (
	tagsLineRe       = regexp.MustCompile(`(?i)tags:\s*(.+)`)
	difficultyLineRe = regexp.MustCompile(`(?i)difficulty:\s*([a-zA-Z]+)`)
)

// Service はリソースのメタデータ補完を行う
//
// フィールドの有無で駆動する状態機械であり、何度実行しても
// 結果が変わらない（ユーザーが設定した値は上書きしない）
type Service struct {
	repo        resource.Repository
	pageFetcher PageFetcher
	videoFetch  VideoFetcher
	chatClient  ChatClient
	enqueuer    resource.Enqueuer
	logger      *slog.Logger
}

type serviceOptions struct {
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithEnrichLogger は Service にロガーを設定する
func WithEnrichLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(
	repo resource.Repository,
	pageFetcher PageFetcher,
	videoFetcher VideoFetcher,
	chatClient ChatClient,
	enqueuer resource.Enqueuer,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		repo:        repo,
		pageFetcher: pageFetcher,
		videoFetch:  videoFetcher,
		chatClient:  chatClient,
		enqueuer:    enqueuer,
		logger:      options.logger,
	}
}

// Enrich は指定リソースのメタデータを補完する
//
// ページメタデータの採用、本文抽出、動画詳細の取得、所要時間の既定値を
// 1つの更新にまとめて永続化し、本文が新たに設定された場合のみ
// インデックス化を投入する。失敗はリソース作成を失敗させない。
func (s *Service) Enrich(ctx context.Context, resourceID uuid.UUID) error {
	opt, err := s.repo.GetByID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to load resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return resource.ErrNotFound
	}

	// ファイル由来のリソースに取得対象はない
	if r.URL == "" {
		err := s.classifyFallback(ctx, resourceID)
		s.enqueuer.EnqueueClassify(resourceID)
		return err
	}

	update := resource.Update{}

	meta, err := s.pageFetcher.FetchMetadata(ctx, r.URL)
	if err != nil {
		s.logger.Warn("page metadata fetch failed",
			slog.String("resourceID", resourceID.String()),
			slog.String("error", err.Error()),
		)
		meta = &PageMetadata{}
	}

	// title == url は「未補完」のシグナル
	if r.Title == r.URL && meta.Title != "" {
		update.Title = resource.Ptr(truncate(meta.Title, maxTitleLength))
	}
	if r.Summary == "" && meta.Description != "" {
		update.Summary = resource.Ptr(meta.Description)
	}
	if r.ThumbnailURL == "" && meta.ImageURL != "" {
		update.ThumbnailURL = resource.Ptr(meta.ImageURL)
	}

	resolvedType := r.Type
	contentNewlySet := false

	if r.Type == resource.TypeArticle || r.Type == resource.TypeWebsite {
		if t := metaType(meta.Type); t != "" && t != r.Type {
			update.Type = resource.Ptr(t)
			resolvedType = t
		}

		if r.ContentText == "" && resolvedType != resource.TypeVideo {
			content, err := s.pageFetcher.FetchContent(ctx, r.URL)
			if err != nil {
				s.logger.Warn("content extraction failed",
					slog.String("resourceID", resourceID.String()),
					slog.String("error", err.Error()),
				)
			} else if content != "" {
				update.ContentText = resource.Ptr(content)
				contentNewlySet = true
			}
		}
	}

	var estimatedMinutes *int

	if resolvedType == resource.TypeVideo {
		estimatedMinutes, contentNewlySet = s.enrichVideo(ctx, r, &update, contentNewlySet)
	} else if resolvedType == resource.TypeArticle && r.EstimatedTimeMinutes == 0 {
		estimatedMinutes = resource.Ptr(defaultArticleMinutes)
	}

	if estimatedMinutes != nil {
		update.EstimatedTimeMinutes = estimatedMinutes
	}

	if !update.IsEmpty() {
		if _, err := s.repo.Update(ctx, resourceID, update); err != nil {
			return fmt.Errorf("failed to persist enrichment: %w", err)
		}
		if contentNewlySet {
			s.enqueuer.EnqueueIndex(resourceID)
		}
	}

	if err := s.classifyFallback(ctx, resourceID); err != nil {
		return err
	}

	// 補完が確定した後にAI分類へ引き継ぐ
	s.enqueuer.EnqueueClassify(resourceID)
	return nil
}

// enrichVideo は動画の詳細情報を取得して更新に反映する
// 詳細取得に失敗した場合は再生時間のみのフォールバックに切り替える
func (s *Service) enrichVideo(ctx context.Context, r *resource.Resource, update *resource.Update, contentNewlySet bool) (*int, bool) {
	var estimatedMinutes *int

	details, err := s.videoFetch.FetchDetails(ctx, r.URL)
	if err != nil {
		s.logger.Warn("video details fetch failed, falling back to duration",
			slog.String("resourceID", r.ID.String()),
			slog.String("error", err.Error()),
		)
		if duration, derr := s.videoFetch.FetchDuration(ctx, r.URL); derr == nil && duration > 0 {
			estimatedMinutes = resource.Ptr(duration)
		}
	} else {
		if details.Title != "" {
			update.Title = resource.Ptr(truncate(details.Title, maxTitleLength))
		}
		if details.Description != "" {
			update.Summary = resource.Ptr(details.Description)
		}
		if details.ThumbnailURL != "" {
			update.ThumbnailURL = resource.Ptr(details.ThumbnailURL)
		}
		if details.DurationMinutes > 0 {
			estimatedMinutes = resource.Ptr(details.DurationMinutes)
		}
		// APIのタグはユーザーやAIが設定したタグを上書きしない
		if len(details.Tags) > 0 && len(r.Tags) == 0 {
			update.Tags = resource.Ptr(details.Tags)
		}
	}

	// 字幕は本文がまだない場合だけ取得する
	if r.ContentText == "" && update.ContentText == nil {
		transcript, terr := s.videoFetch.FetchTranscript(ctx, r.URL)
		if terr != nil {
			s.logger.Warn("transcript fetch failed",
				slog.String("resourceID", r.ID.String()),
				slog.String("error", terr.Error()),
			)
		} else if transcript != "" {
			update.ContentText = resource.Ptr(transcript)
			contentNewlySet = true
		}
	}

	return estimatedMinutes, contentNewlySet
}

// classifyFallback はタグまたは難易度が未設定のまま残った場合に
// 1回だけ分類呼び出しを行う
//
// 応答は固定のテキスト形式（Tags: 行と Difficulty: 行）として解釈し、
// 未設定のフィールドにのみ反映する。失敗は記録して握りつぶす。
func (s *Service) classifyFallback(ctx context.Context, resourceID uuid.UUID) error {
	opt, err := s.repo.GetByID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to reload resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return resource.ErrNotFound
	}

	if len(r.Tags) > 0 && r.Difficulty != "" {
		return nil
	}

	content := r.ContentText
	if content == "" {
		content = r.Title + "\n" + r.Summary
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	messages := []prompt.Message{
		{
			Role: prompt.RoleSystem,
			Content: "Classify the provided learning resource content. Respond in exactly this format:\n" +
				"Tags: tag1, tag2, tag3\n" +
				"Difficulty: Beginner|Intermediate|Advanced",
		},
		{Role: prompt.RoleUser, Content: truncate(content, 4000)},
	}

	reply, err := s.chatClient.Chat(ctx, messages)
	if err != nil {
		s.logger.Warn("classification fallback failed",
			slog.String("resourceID", resourceID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	update := resource.Update{}

	if len(r.Tags) == 0 {
		if m := tagsLineRe.FindStringSubmatch(reply); m != nil {
			tags := resource.NormalizeTags(strings.Split(m[1], ","))
			if len(tags) > 0 {
				update.Tags = resource.Ptr(tags)
			}
		}
	}

	if r.Difficulty == "" {
		if m := difficultyLineRe.FindStringSubmatch(reply); m != nil {
			if d := resource.ParseDifficulty(m[1]); d != "" {
				update.Difficulty = resource.Ptr(d)
			}
		}
	}

	if update.IsEmpty() {
		return nil
	}

	if _, err := s.repo.Update(ctx, resourceID, update); err != nil {
		s.logger.Warn("classification fallback persist failed",
			slog.String("resourceID", resourceID.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// metaType はページメタデータの種別文字列を内部の種別へ対応付ける
func metaType(s string) resource.Type {
	switch strings.ToLower(s) {
	case "article":
		return resource.TypeArticle
	case "video", "video.other", "video.movie":
		return resource.TypeVideo
	case "website":
		return resource.TypeWebsite
	default:
		return ""
	}
}

// truncate はUTF-8の文字境界を保って文字列を切り詰める
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
