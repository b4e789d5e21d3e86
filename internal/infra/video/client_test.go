package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "標準的な視聴URL",
			url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "短縮URL",
			url:  "https://youtu.be/dQw4w9WgXcQ",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "埋め込みURL",
			url:  "https://www.youtube.com/embed/dQw4w9WgXcQ",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "クエリパラメータ付き",
			url:  "https://www.youtube.com/watch?t=30&v=dQw4w9WgXcQ",
			want: "dQw4w9WgXcQ",
		},
		{
			name: "YouTube以外のURL",
			url:  "https://vimeo.com/123456789",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractYouTubeID(tt.url))
		})
	}
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		name string
		iso  string
		want int
	}{
		{name: "時間と分と秒", iso: "PT1H2M3S", want: 62},
		{name: "30秒超は切り上げ", iso: "PT10M45S", want: 11},
		{name: "30秒ちょうどは切り上げない", iso: "PT10M30S", want: 10},
		{name: "秒のみは最低1分", iso: "PT45S", want: 1},
		{name: "分のみ", iso: "PT15M", want: 15},
		{name: "不正な表記", iso: "1:02:03", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseISODuration(tt.iso))
		})
	}
}

func TestFindCaptionTrackURL(t *testing.T) {
	t.Run("英語トラックを優先する", func(t *testing.T) {
		page := []byte(`<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"https://example.com/ja","languageCode":"ja"},{"baseUrl":"https://example.com/en","languageCode":"en"}]}}};</script>`)
		assert.Equal(t, "https://example.com/en", findCaptionTrackURL(page))
	})

	t.Run("英語がなければ先頭のトラックを使う", func(t *testing.T) {
		page := []byte(`ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"https://example.com/ja","languageCode":"ja"}]}}};`)
		assert.Equal(t, "https://example.com/ja", findCaptionTrackURL(page))
	})

	t.Run("字幕がないページは空文字列", func(t *testing.T) {
		page := []byte(`ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc"}};`)
		assert.Equal(t, "", findCaptionTrackURL(page))
	})
}

func TestParseCaptionXML(t *testing.T) {
	xml := []byte(`<?xml version="1.0" encoding="utf-8"?>
<transcript>
	<text start="0" dur="2.5">Hello &amp; welcome</text>
	<text start="2.5" dur="3">to the channel</text>
	<text start="5.5" dur="1"> </text>
</transcript>`)

	got, err := parseCaptionXML(xml)
	assert.NoError(t, err)
	assert.Equal(t, "Hello & welcome to the channel", got)
}
