package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lockin-app/lockin-rag/internal/core/prompt"
)

// maxChecklistItems は生成するチェックリスト項目数の上限
const maxChecklistItems = 5

// ChatClient はチャット補完の呼び出しインターフェース
type ChatClient interface {
	Chat(ctx context.Context, messages []prompt.Message) (string, error)
}

// ChecklistParams はタスク再開チェックリスト生成の入力
// タイトル以外は任意で、存在する情報だけをプロンプトへ渡す
type ChecklistParams struct {
	Title      string
	Note       string
	Transcript string
	GitSummary string
	Tabs       []string
}

// ChecklistService は中断したタスクの再開手順を生成する
type ChecklistService struct {
	builder *prompt.Builder
	chat    ChatClient
	logger  *slog.Logger
}

type checklistOptions struct {
	logger *slog.Logger
}

// ChecklistOption は ChecklistService のオプション設定
type ChecklistOption func(*checklistOptions)

// WithChecklistLogger は ChecklistService にロガーを設定する
func WithChecklistLogger(logger *slog.Logger) ChecklistOption {
	return func(o *checklistOptions) {
		o.logger = logger
	}
}

// NewChecklistService は新しいChecklistServiceを作成する
func NewChecklistService(builder *prompt.Builder, chat ChatClient, opts ...ChecklistOption) *ChecklistService {
	options := checklistOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &ChecklistService{
		builder: builder,
		chat:    chat,
		logger:  options.logger,
	}
}

// Generate はコンテキストから具体的な次の一手のリストを生成する
// 応答はJSON配列として厳密に解釈し、解釈できなければエラーを返す
func (s *ChecklistService) Generate(ctx context.Context, params ChecklistParams) ([]string, error) {
	messages, err := s.builder.Build(prompt.KeyChecklist, prompt.Vars{
		"title":       params.Title,
		"note":        params.Note,
		"transcript":  params.Transcript,
		"git_summary": params.GitSummary,
		"tabs":        strings.Join(params.Tabs, ", "),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	reply, err := s.chat.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("checklist generation failed: %w", err)
	}

	items, err := parseChecklist(reply)
	if err != nil {
		s.logger.Warn("unparsable checklist response",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("checklist generated", slog.Int("items", len(items)))
	return items, nil
}

// parseChecklist は応答からJSON文字列配列を取り出す
// 指示に反してコードフェンスで包まれた応答も受け入れる
func parseChecklist(reply string) ([]string, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var items []string
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("invalid checklist response: %w", err)
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
		if len(result) == maxChecklistItems {
			break
		}
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("checklist response contained no items")
	}
	return result, nil
}
