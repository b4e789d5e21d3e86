package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk は分割済みテキストの1断片を表す
type Chunk struct {
	Index      int    // 0始まりの連番
	Text       string // オーバーラップを含む本文
	TokenCount int
}

// Tokenizer はトークン化戦略を差し替えるためのインターフェース
// 同じ入力に対して境界が安定していれば近似実装でもよい
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Config はチャンク分割のチューニング値
type Config struct {
	TargetTokens  int // 目標トークン数
	MinTokens     int // 最小トークン数（これ未満の末尾断片は前のチャンクへ併合）
	OverlapTokens int // 隣接チャンク間のオーバーラップ
}

// DefaultConfig は既定のチャンク設定を返す
func DefaultConfig() *Config {
	return &Config{
		TargetTokens:  500,
		MinTokens:     100,
		OverlapTokens: 50,
	}
}

// Chunker はテキストを検索単位に分割する
//
// トークン列上の固定境界で分割する決定的なアルゴリズムであり、
// 同じ入力からは常に同じチャンク列が再生成される。各チャンクは
// 直前のチャンク末尾のオーバーラップ分を先頭に含むため、境界を
// またぐ概念はどちらのチャンクからも検索できる。
type Chunker struct {
	tokenizer Tokenizer
	config    *Config
}

// NewChunker は新しいChunkerを作成する
func NewChunker(tokenizer Tokenizer, config *Config) *Chunker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Chunker{
		tokenizer: tokenizer,
		config:    config,
	}
}

// Chunk はテキストをチャンク列に分割する
//
// 新規部分（オーバーラップを除く）はトークン列を漏れなく被覆するので、
// 各チャンクの新規部分を連結すると元のテキストが復元できる。
// 最小トークン数に満たない末尾断片は単独のチャンクとして出力せず、
// 直前のチャンクへ併合する。
func (c *Chunker) Chunk(text string) []Chunk {
	if text == "" {
		return nil
	}

	tokens := c.tokenizer.Encode(text)
	target := c.config.TargetTokens
	overlap := c.config.OverlapTokens

	if len(tokens) <= target {
		return []Chunk{{Index: 0, Text: text, TokenCount: len(tokens)}}
	}

	var bounds [][2]int // 各チャンクの [start, end)（オーバーラップ込み）
	for start := 0; start < len(tokens); start += target {
		end := start + target
		if end > len(tokens) {
			end = len(tokens)
		}

		// 末尾断片が小さすぎる場合は直前のチャンクを延長する
		if len(bounds) > 0 && end-start < c.config.MinTokens {
			bounds[len(bounds)-1][1] = end
			break
		}

		withOverlap := start - overlap
		if withOverlap < 0 {
			withOverlap = 0
		}
		bounds = append(bounds, [2]int{withOverlap, end})
	}

	chunks := make([]Chunk, len(bounds))
	for i, b := range bounds {
		span := tokens[b[0]:b[1]]
		chunks[i] = Chunk{
			Index:      i,
			Text:       c.tokenizer.Decode(span),
			TokenCount: len(span),
		}
	}
	return chunks
}

// TiktokenTokenizer はOpenAIのcl100k_baseエンコーダによるトークン化
type TiktokenTokenizer struct {
	encoder *tiktoken.Tiktoken
}

// NewTiktokenTokenizer は新しいTiktokenTokenizerを作成する
// cl100k_baseはtext-embedding-3-smallと互換のエンコーディング
func NewTiktokenTokenizer() (*TiktokenTokenizer, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TiktokenTokenizer{encoder: encoder}, nil
}

// Encode はテキストをトークン列に変換する
func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.encoder.Encode(text, nil, nil)
}

// Decode はトークン列をテキストに戻す
func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.encoder.Decode(tokens)
}

var _ Tokenizer = (*TiktokenTokenizer)(nil)
