package enrich

import "context"

// PageMetadata はWebページから取得したメタデータ
type PageMetadata struct {
	Title       string
	Description string
	ImageURL    string
	SiteName    string
	Type        string // og:type など（"article", "video", "website"）
}

// PageFetcher はWebページのメタデータと本文の取得を担うインターフェース
type PageFetcher interface {
	FetchMetadata(ctx context.Context, url string) (*PageMetadata, error)
	// FetchContent は可読部分を抽出したMarkdownテキストを返す
	FetchContent(ctx context.Context, url string) (string, error)
}

// VideoDetails は動画APIから1回の呼び出しで取得する詳細情報
type VideoDetails struct {
	Title           string
	Description     string
	ThumbnailURL    string
	DurationMinutes int
	Tags            []string
}

// VideoFetcher は動画メタデータの取得を担うインターフェース
type VideoFetcher interface {
	// FetchDetails は詳細情報をまとめて取得する
	FetchDetails(ctx context.Context, url string) (*VideoDetails, error)
	// FetchDuration は再生時間だけを取得するフォールバック
	FetchDuration(ctx context.Context, url string) (int, error)
	// FetchTranscript は字幕テキストを取得する（存在しない場合は空文字列）
	FetchTranscript(ctx context.Context, url string) (string, error)
}
