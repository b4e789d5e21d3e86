package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// Outcome は分類処理の結果種別
type Outcome string

const (
	// OutcomeApplied は1つ以上のフィールドを更新した
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped は更新対象がなかった（既に設定済み、または応答不正）
	OutcomeSkipped Outcome = "skipped"
)

// ChatClient はチャット補完の呼び出しインターフェース
type ChatClient interface {
	Chat(ctx context.Context, messages []prompt.Message) (string, error)
}

// generatedMetadata はmetadata_genテンプレートの応答形式
type generatedMetadata struct {
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Difficulty       string   `json:"difficulty"`
	Tags             []string `json:"tags"`
	EstimatedMinutes int      `json:"estimated_minutes"`
}

// Service はAIによるメタデータ分類を行う薄いオーケストレーション層
//
// プロンプト構築、チャット呼び出し、制約付き出力の解釈だけを担い、
// 結果は未設定のフィールドにのみ反映する。解釈できない応答は
// エラーではなく「更新なし」として扱う。
type Service struct {
	repo       resource.Repository
	builder    *prompt.Builder
	chatClient ChatClient
	logger     *slog.Logger
}

type serviceOptions struct {
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithClassifyLogger は Service にロガーを設定する
func WithClassifyLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo resource.Repository, builder *prompt.Builder, chatClient ChatClient, opts ...ServiceOption) *Service {
	options := serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		repo:       repo,
		builder:    builder,
		chatClient: chatClient,
		logger:     options.logger,
	}
}

// Classify はリソースの未設定メタデータをAIで補完する
func (s *Service) Classify(ctx context.Context, resourceID uuid.UUID) (Outcome, error) {
	opt, err := s.repo.GetByID(ctx, resourceID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to load resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return OutcomeSkipped, resource.ErrNotFound
	}

	// 主要メタデータが揃っていれば何もしない
	if r.Summary != "" && len(r.Tags) > 0 && r.Difficulty != "" {
		return OutcomeSkipped, nil
	}

	content := r.ContentText
	if content == "" && r.URL != "" {
		content = "URL: " + r.URL + "\nTitle: " + r.Title
	}
	if strings.TrimSpace(content) == "" {
		return OutcomeSkipped, nil
	}

	messages, err := s.builder.Build(prompt.KeyMetadataGen, prompt.Vars{
		"type":    string(r.Type),
		"content": limitContent(content),
	})
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to build prompt: %w", err)
	}

	reply, err := s.chatClient.Chat(ctx, messages)
	if err != nil {
		s.logger.Warn("metadata classification call failed",
			slog.String("resourceID", resourceID.String()),
			slog.String("error", err.Error()),
		)
		return OutcomeSkipped, nil
	}

	meta, ok := parseMetadata(reply)
	if !ok {
		s.logger.Warn("unparsable metadata response, skipping",
			slog.String("resourceID", resourceID.String()),
		)
		return OutcomeSkipped, nil
	}

	update := resource.Update{}

	// title == url は仮タイトルのシグナルなので生成値で置き換えてよい
	if r.Title == r.URL && meta.Title != "" {
		update.Title = resource.Ptr(meta.Title)
	}
	if r.Summary == "" && meta.Summary != "" {
		update.Summary = resource.Ptr(meta.Summary)
	}
	if r.Difficulty == "" {
		if d := resource.ParseDifficulty(meta.Difficulty); d != "" {
			update.Difficulty = resource.Ptr(d)
		}
	}
	if len(r.Tags) == 0 && len(meta.Tags) > 0 {
		update.Tags = resource.Ptr(meta.Tags)
	}
	if r.EstimatedTimeMinutes == 0 && meta.EstimatedMinutes > 0 {
		update.EstimatedTimeMinutes = resource.Ptr(meta.EstimatedMinutes)
	}

	if update.IsEmpty() {
		return OutcomeSkipped, nil
	}

	if _, err := s.repo.Update(ctx, resourceID, update); err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to persist classification: %w", err)
	}
	return OutcomeApplied, nil
}

// GenerateTitle は仮タイトルのままのリソースにタイトルを生成する
// タイトルが既に設定されている場合は何もしない
func (s *Service) GenerateTitle(ctx context.Context, resourceID uuid.UUID) (Outcome, error) {
	opt, err := s.repo.GetByID(ctx, resourceID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to load resource: %w", err)
	}
	r, ok := opt.Get()
	if !ok {
		return OutcomeSkipped, resource.ErrNotFound
	}

	if r.Title != r.URL {
		return OutcomeSkipped, nil
	}

	messages, err := s.builder.Build(prompt.KeyTitleGen, prompt.Vars{
		"url":     r.URL,
		"content": limitContent(r.ContentText),
	})
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to build prompt: %w", err)
	}

	reply, err := s.chatClient.Chat(ctx, messages)
	if err != nil {
		s.logger.Warn("title generation call failed",
			slog.String("resourceID", resourceID.String()),
			slog.String("error", err.Error()),
		)
		return OutcomeSkipped, nil
	}

	title := strings.Trim(strings.TrimSpace(reply), `"`)
	if title == "" {
		return OutcomeSkipped, nil
	}

	if _, err := s.repo.Update(ctx, resourceID, resource.Update{Title: resource.Ptr(title)}); err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to persist title: %w", err)
	}
	return OutcomeApplied, nil
}

// parseMetadata は応答からJSONオブジェクトを取り出す
// モデルがコードフェンスで包んで返すことがあるため、フェンスを剥がしてから
// 解釈する。失敗は呼び出し側で「更新なし」として扱う
func parseMetadata(reply string) (*generatedMetadata, bool) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var meta generatedMetadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

// limitContent はプロンプトへ渡す本文を上限までで切り詰める
func limitContent(content string) string {
	const maxBytes = 8000
	if len(content) <= maxBytes {
		return content
	}
	cut := maxBytes
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut]
}
