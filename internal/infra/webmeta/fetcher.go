package webmeta

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/lockin-app/lockin-rag/internal/core/enrich"
)

const (
	// DefaultTimeout はページ取得のデフォルトタイムアウト
	DefaultTimeout = 30 * time.Second

	// maxReadSize は読み込むレスポンスの最大サイズ（5MB）
	maxReadSize = int64(5 * 1024 * 1024)

	userAgent = "lockin-rag/1.0"
)

var _ enrich.PageFetcher = (*Fetcher)(nil)

// Fetcher はWebページのメタデータと可読本文を取得する
type Fetcher struct {
	client    *http.Client
	converter *md.Converter
	logger    *slog.Logger
}

type fetcherOptions struct {
	timeout time.Duration
	logger  *slog.Logger
}

type FetcherOption func(*fetcherOptions)

// WithFetcherTimeout はHTTPリクエストのタイムアウトを設定する
func WithFetcherTimeout(d time.Duration) FetcherOption {
	return func(o *fetcherOptions) {
		o.timeout = d
	}
}

// WithFetcherLogger はロガーを設定する
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(o *fetcherOptions) {
		o.logger = logger
	}
}

func NewFetcher(opts ...FetcherOption) *Fetcher {
	options := &fetcherOptions{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Fetcher{
		client:    &http.Client{Timeout: options.timeout},
		converter: md.NewConverter("", true, nil),
		logger:    options.logger,
	}
}

// FetchMetadata はページの<title>とOpen Graphタグを解析して返す
func (f *Fetcher) FetchMetadata(ctx context.Context, url string) (*enrich.PageMetadata, error) {
	doc, err := f.fetchDocument(ctx, url)
	if err != nil {
		return nil, err
	}

	meta := &enrich.PageMetadata{
		Title:       ogProperty(doc, "og:title"),
		Description: ogProperty(doc, "og:description"),
		ImageURL:    ogProperty(doc, "og:image"),
		SiteName:    ogProperty(doc, "og:site_name"),
		Type:        ogProperty(doc, "og:type"),
	}

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.Description == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			meta.Description = strings.TrimSpace(desc)
		}
	}

	return meta, nil
}

// FetchContent はページ本文をMarkdownに変換して返す
// script/style/nav等の非本文要素は除去する
func (f *Fetcher) FetchContent(ctx context.Context, url string) (string, error) {
	doc, err := f.fetchDocument(ctx, url)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	// <article>や<main>があればそちらを優先する
	selection := doc.Find("article").First()
	if selection.Length() == 0 {
		selection = doc.Find("main").First()
	}
	if selection.Length() == 0 {
		selection = doc.Find("body").First()
	}

	html, err := goquery.OuterHtml(selection)
	if err != nil {
		return "", fmt.Errorf("failed to extract html: %w", err)
	}

	markdown, err := f.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}

	return collapseBlankLines(markdown), nil
}

func (f *Fetcher) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported url scheme: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxReadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	return doc, nil
}

func ogProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).Attr("content")
	return strings.TrimSpace(content)
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var result []string
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			result = append(result, "")
			continue
		}
		blank = false
		result = append(result, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
