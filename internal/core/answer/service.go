package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/retrieval"
	"github.com/lockin-app/lockin-rag/internal/core/security"
)

// excerptLength は引用として表示する本文の最大バイト数
const excerptLength = 200

// Retriever は関連チャンクの検索と1回答サイクル内の結果統合を担う
type Retriever interface {
	Retrieve(ctx context.Context, userID uuid.UUID, question string) (*retrieval.Result, error)
	Combine(results ...*retrieval.Result) *retrieval.Result
}

// ChatClient はチャット補完の呼び出しインターフェース
type ChatClient interface {
	Chat(ctx context.Context, messages []prompt.Message) (string, error)
}

// Composer は質問応答パイプラインの最終段を担う
//
// サニタイズ、インジェクション判定、検索、プロンプト構築、チャット呼び出しを
// この順で同期的に実行する。ブロック判定された質問はモデルへ到達しない
type Composer struct {
	guard     *security.Service
	retriever Retriever
	builder   *prompt.Builder
	chat      ChatClient
	logger    *slog.Logger
}

type composerOptions struct {
	logger *slog.Logger
}

// ComposerOption は Composer のオプション設定
type ComposerOption func(*composerOptions)

// WithComposerLogger は Composer にロガーを設定する
func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(o *composerOptions) {
		o.logger = logger
	}
}

// NewComposer は新しいComposerを作成する
func NewComposer(
	guard *security.Service,
	retriever Retriever,
	builder *prompt.Builder,
	chat ChatClient,
	opts ...ComposerOption,
) *Composer {
	options := composerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Composer{
		guard:     guard,
		retriever: retriever,
		builder:   builder,
		chat:      chat,
		logger:    options.logger,
	}
}

// Answer は質問に対する回答を生成する
//
// ブロックされた質問は検索にもモデルにも到達せず、固定の拒否文を返す。
// 検索結果が空の場合はモデルを呼ばずに固定の情報不足の回答を返す。
// どちらも呼び出し側から見れば正常な応答であり、エラーにはならない
func (c *Composer) Answer(ctx context.Context, userID uuid.UUID, question string, history []prompt.Message) (*Response, error) {
	processed := c.guard.Process(question)
	if processed.Blocked {
		return &Response{
			Type:    TypeError,
			Content: prompt.RejectionMessage,
			Sources: []Source{},
		}, nil
	}

	result, err := c.retriever.Retrieve(ctx, userID, processed.Sanitized)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 追い質問は単体では検索語として弱いことが多いので、直前の
	// ユーザー発話でも検索して1サイクル分として統合する。
	// 補助検索の失敗は本検索の結果だけで続行する
	if prev := lastUserTurn(history); prev != "" {
		prior, perr := c.retriever.Retrieve(ctx, userID, prev)
		if perr != nil {
			c.logger.Warn("history retrieval failed",
				slog.String("userID", userID.String()),
				slog.String("error", perr.Error()),
			)
		} else {
			result = c.retriever.Combine(result, prior)
		}
	}

	if result.IsEmpty() {
		return &Response{
			Type:    TypeMessage,
			Content: prompt.RefusalMessage,
			Sources: []Source{},
		}, nil
	}

	messages, err := c.builder.BuildWithHistory(prompt.KeyRagQA, prompt.Vars{
		"context":  buildContext(result),
		"question": processed.Sanitized,
	}, history)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	reply, err := c.chat.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	c.logger.Info("answer composed",
		slog.String("userID", userID.String()),
		slog.Int("contextChunks", len(result.Chunks)),
	)

	return &Response{
		Type:    TypeMessage,
		Content: reply,
		Sources: collectSources(result),
	}, nil
}

// lastUserTurn は会話履歴の中で最後のユーザー発話を返す
func lastUserTurn(history []prompt.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == prompt.RoleUser {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}

// buildContext は検索チャンクをプロンプト用のコンテキスト文字列へ整形する
func buildContext(result *retrieval.Result) string {
	parts := make([]string, len(result.Chunks))
	for i, chunk := range result.Chunks {
		title := chunk.ResourceTitle
		if title == "" {
			title = "Untitled"
		}
		parts[i] = "Source: " + title + "\nContent: " + chunk.Text
	}
	return strings.Join(parts, "\n---\n")
}

// collectSources はチャンク列をリソース単位の引用へまとめる
// 同じリソースの複数チャンクは最高スコアの1件に集約し、引用の重複で
// UIを埋めないようにする
func collectSources(result *retrieval.Result) []Source {
	byResource := make(map[uuid.UUID]int)
	sources := make([]Source, 0, len(result.Chunks))

	for _, chunk := range result.Chunks {
		if idx, ok := byResource[chunk.ResourceID]; ok {
			if chunk.Score > sources[idx].Score {
				sources[idx].Score = chunk.Score
			}
			continue
		}
		byResource[chunk.ResourceID] = len(sources)
		sources = append(sources, Source{
			ResourceID: chunk.ResourceID,
			Title:      chunk.ResourceTitle,
			URL:        chunk.ResourceURL,
			Score:      chunk.Score,
			Excerpt:    excerpt(chunk.Text),
		})
	}
	return sources
}

// excerpt はUTF-8の文字境界を保って先頭部分を切り出す
func excerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	cut := excerptLength
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut] + "..."
}
