package answer

import "github.com/google/uuid"

// ResponseType は回答の種別
type ResponseType string

const (
	// TypeMessage は通常のテキスト回答
	TypeMessage ResponseType = "message"
	// TypeToolCall はツール実行要求を含む回答
	TypeToolCall ResponseType = "tool_call"
	// TypeError はユーザー向けのエラー応答（ブロック時など）
	TypeError ResponseType = "error"
)

// Source は回答の根拠となったリソースの引用
// チャンク単位ではなくリソース単位で1件にまとめる
type Source struct {
	ResourceID uuid.UUID
	Title      string
	URL        string
	Score      float64 // そのリソースのチャンクの最高スコア
	Excerpt    string
}

// Response は質問応答の最終結果
type Response struct {
	Type    ResponseType
	Content string
	Sources []Source
}
