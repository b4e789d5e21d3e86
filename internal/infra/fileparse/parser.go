package fileparse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

var (
	paragraphCloseRe = regexp.MustCompile(`</w:p>`)
	xmlTagRe         = regexp.MustCompile(`<[^>]+>`)
)

// Parser はアップロードされたファイルから検索対象の本文を抽出する
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Extract はファイル名と内容から本文テキストを取り出す
//
// プレーンテキスト系とgo-enryがテキストと判定したソースコードは
// そのまま返し、docxは文書XMLからテキストを復元する。
// 抽出できない形式は内容の代わりに説明文を返す。
func (p *Parser) Extract(fileName string, data []byte) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))

	switch ext {
	case "txt", "md", "json", "csv":
		return string(data), nil
	case "docx":
		content, err := extractDocx(data)
		if err != nil {
			return "", fmt.Errorf("failed to parse docx: %w", err)
		}
		return content, nil
	}

	// 拡張子で判定できない場合はgo-enryで言語を推定する
	// ソースコードや設定ファイルはテキストとしてそのまま扱える
	if language := enry.GetLanguage(fileName, data); language != "" && !enry.IsBinary(data) {
		return string(data), nil
	}

	return Placeholder(fileName), nil
}

// Placeholder は本文抽出に対応していないファイルの代替説明文を返す
func Placeholder(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	return fmt.Sprintf("File: %s (Content extraction not supported for .%s)", fileName, ext)
}

// extractDocx はdocx内のword/document.xmlからテキストを復元する
// 段落境界は改行として保持する
func extractDocx(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var document []byte
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		document, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		break
	}
	if document == nil {
		return "", fmt.Errorf("word/document.xml not found")
	}

	text := paragraphCloseRe.ReplaceAllString(string(document), "\n")
	text = xmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	var result []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return strings.Join(result, "\n"), nil
}
