package fileparse

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Extract(t *testing.T) {
	parser := NewParser()

	t.Run("テキストファイルはそのまま返す", func(t *testing.T) {
		content, err := parser.Extract("notes.md", []byte("# Heading\n\nBody text."))
		require.NoError(t, err)
		assert.Equal(t, "# Heading\n\nBody text.", content)
	})

	t.Run("ソースコードはgo-enryの判定でテキストとして扱う", func(t *testing.T) {
		source := []byte("package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n")
		content, err := parser.Extract("main.go", source)
		require.NoError(t, err)
		assert.Equal(t, string(source), content)
	})

	t.Run("対応していない形式は説明文を返す", func(t *testing.T) {
		binary := []byte{0x00, 0x01, 0x02, 0xFF}
		content, err := parser.Extract("report.pdf", binary)
		require.NoError(t, err)
		assert.Equal(t, "File: report.pdf (Content extraction not supported for .pdf)", content)
	})

	t.Run("docxから段落テキストを復元する", func(t *testing.T) {
		document := `<?xml version="1.0"?>
<w:document><w:body>
<w:p><w:r><w:t>First paragraph &amp; more</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body></w:document>`

		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		fw, err := zw.Create("word/document.xml")
		require.NoError(t, err)
		_, err = fw.Write([]byte(document))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		content, err := parser.Extract("essay.docx", buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "First paragraph & more\nSecond paragraph", content)
	})

	t.Run("document.xmlのないdocxはエラー", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		_, err := zw.Create("other.xml")
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = parser.Extract("broken.docx", buf.Bytes())
		assert.Error(t, err)
	})
}
