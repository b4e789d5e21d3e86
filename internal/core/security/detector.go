package security

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// BlockThreshold はブロック判定の閾値
	// 強いパターン1件のマッチだけでブロックに到達し、ヒューリスティック
	// 単独では複数シグナルの蓄積が必要になるよう調整されている
	BlockThreshold = 25

	// patternScore はブロックパターン1件のマッチあたりの加点
	patternScore = 25

	// previewLength はログに残す入力プレビューの最大文字数
	previewLength = 100
)

// Verdict はインジェクション判定の結果を表す
type Verdict struct {
	RiskScore       int      // 0-100（各シグナルの合算、100でキャップ）
	MatchedPatterns []string // マッチしたパターン（検出順）
	IsBlocked       bool     // RiskScore >= BlockThreshold
}

// Detector はプロンプトインジェクションのリスクをスコアリングする
type Detector struct {
	patterns []*regexp.Regexp
}

// ヒューリスティック用の正規表現
var (
	// 構造記号の3文字以上の連続
	structuralRunRe = regexp.MustCompile("[<>{}|\\[\\]\\\\]{3,}")

	// ロールキーワードで始まるコードフェンス
	roleFenceRe = regexp.MustCompile("(?i)```(system|admin|root|sudo)")

	// 記号・特殊文字
	specialCharRe = regexp.MustCompile("[!@#$%^&*()_+=\\[\\]{}|;:'\",.<>?/\\\\~`]")
)

// roleKeywords は出現回数を数えるロール関連キーワード
var roleKeywords = []string{"system", "admin", "assistant", "instruction", "prompt"}

// NewDetector はブロックパターンをコンパイルしてDetectorを作成する
// パターンが不正な正規表現の場合はエラーを返す（設定エラー、即時失敗）
func NewDetector(blockedPatterns []string) (*Detector, error) {
	patterns := make([]*regexp.Regexp, 0, len(blockedPatterns))
	for _, p := range blockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Detector{patterns: patterns}, nil
}

// Detect は2つの独立したスコアリングパスを実行し、結果を合算する
// パターンパス: 既知のジェイルブレイク文言に1件+25
// ヒューリスティックパス: 弱いシグナルの蓄積（+10〜+20）
func (d *Detector) Detect(input string) Verdict {
	var matched []string
	score := 0

	for _, re := range d.patterns {
		if re.MatchString(input) {
			matched = append(matched, re.String())
			score += patternScore
		}
	}

	score += heuristicScore(input)

	if score > 100 {
		score = 100
	}

	return Verdict{
		RiskScore:       score,
		MatchedPatterns: matched,
		IsBlocked:       score >= BlockThreshold,
	}
}

// heuristicScore は正規表現パターン以外の補助的なシグナルを加点する
func heuristicScore(input string) int {
	score := 0

	// (a) 構造記号の連続
	if structuralRunRe.MatchString(input) {
		score += 15
	}

	// (b) ロールキーワード付きコードフェンス
	if roleFenceRe.MatchString(input) {
		score += 20
	}

	// (c) ロール関連キーワードの合計出現回数が3回以上
	lower := strings.ToLower(input)
	keywordCount := 0
	for _, kw := range roleKeywords {
		keywordCount += strings.Count(lower, kw)
	}
	if keywordCount >= 3 {
		score += 15
	}

	// (d) 記号・特殊文字が全体の30%を超える
	if len(input) > 0 {
		specials := len(specialCharRe.FindAllString(input, -1))
		if float64(specials) > float64(len(input))*0.3 {
			score += 10
		}
	}

	return score
}

// Preview はログ出力用に入力の先頭部分だけを返す
// 全文は残さない（ログ量の抑制と機微テキストの二次露出防止のため）
func Preview(input string) string {
	if len(input) <= previewLength {
		return input
	}
	cut := previewLength
	for cut > 0 && input[cut]&0xC0 == 0x80 {
		cut--
	}
	return input[:cut]
}
