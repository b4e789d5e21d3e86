package security

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputLength は入力テキストのデフォルト最大文字数
const DefaultMaxInputLength = 2000

// Sanitize はユーザー入力テキストを正規化します
// 制御文字（C0/C1、一般的な空白文字を除く）を除去し、連続する空白を
// 1つのスペースに畳み込み、前後の空白を削除した上で maxLength 文字に
// 切り詰めます。純粋関数であり、同じ入力は常に同じ出力になります。
func Sanitize(input string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}

	var sb strings.Builder
	sb.Grow(len(input))

	// 制御文字の除去（タブ・改行・復帰は空白としてそのまま通し、
	// 後段の空白畳み込みで処理する）
	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		sb.WriteRune(r)
	}

	// 連続する空白を1つのスペースに畳み込む
	sanitized := strings.Join(strings.Fields(sb.String()), " ")

	// 最大長で切り詰める（超過はエラーではなく黙って切り捨てる）
	// マルチバイト文字の途中で切らないよう、ルーン境界まで戻す
	if len(sanitized) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimRight(sanitized[:cut], " ")
	}

	return sanitized
}
