package video

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lockin-app/lockin-rag/internal/core/enrich"
)

const (
	// DefaultTimeout は外部API呼び出しのタイムアウト
	DefaultTimeout = 30 * time.Second

	vimeoOembedEndpoint = "https://vimeo.com/api/oembed.json"

	transcriptUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// youtubeIDRe はYouTube URLから11文字の動画IDを抽出する
	youtubeIDRe = regexp.MustCompile(`(?i)(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

	// isoDurationRe はISO 8601の再生時間表記（PT1H2M3S）を解析する
	isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

	playerResponseRe = regexp.MustCompile(`(?s)ytInitialPlayerResponse\s*=\s*(\{.+?\});`)
)

var _ enrich.VideoFetcher = (*Client)(nil)

// Client はYouTube Data APIとVimeo oEmbedから動画メタデータを取得する
type Client struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type clientOptions struct {
	timeout time.Duration
	logger  *slog.Logger
}

type ClientOption func(*clientOptions)

// WithClientTimeout は外部API呼び出しのタイムアウトを設定する
func WithClientTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient はClientを生成する
// apiKeyが空の場合、YouTube詳細取得は常にエラーを返すがVimeoは利用できる
func NewClient(apiKey string, opts ...ClientOption) *Client {
	options := &clientOptions{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: options.timeout},
		logger:     options.logger,
	}
}

// FetchDetails はYouTube Data APIから動画の詳細情報をまとめて取得する
func (c *Client) FetchDetails(ctx context.Context, videoURL string) (*enrich.VideoDetails, error) {
	videoID := extractYouTubeID(videoURL)
	if videoID == "" {
		return nil, fmt.Errorf("not a youtube url: %s", videoURL)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("youtube api key is not set")
	}

	svc, err := youtube.NewService(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	resp, err := svc.Videos.List([]string{"snippet", "contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video details: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video not found: %s", videoID)
	}

	item := resp.Items[0]
	details := &enrich.VideoDetails{
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		ThumbnailURL:    bestThumbnail(item.Snippet.Thumbnails),
		DurationMinutes: parseISODuration(item.ContentDetails.Duration),
		Tags:            item.Snippet.Tags,
	}
	return details, nil
}

// FetchDuration は再生時間（分）だけを取得するフォールバック
// YouTubeはData API、VimeoはoEmbedを使う
func (c *Client) FetchDuration(ctx context.Context, videoURL string) (int, error) {
	if strings.Contains(videoURL, "vimeo.com") {
		return c.fetchVimeoDuration(ctx, videoURL)
	}

	details, err := c.FetchDetails(ctx, videoURL)
	if err != nil {
		return 0, err
	}
	return details.DurationMinutes, nil
}

// FetchTranscript はYouTubeの視聴ページから字幕トラックを辿って本文を取得する
// 字幕が存在しない場合は空文字列を返す
func (c *Client) FetchTranscript(ctx context.Context, videoURL string) (string, error) {
	videoID := extractYouTubeID(videoURL)
	if videoID == "" {
		return "", nil
	}

	body, err := c.getBody(ctx, "https://www.youtube.com/watch?v="+videoID, transcriptUserAgent)
	if err != nil {
		return "", fmt.Errorf("failed to fetch watch page: %w", err)
	}

	trackURL := findCaptionTrackURL(body)
	if trackURL == "" {
		return "", nil
	}

	captionXML, err := c.getBody(ctx, trackURL, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch caption track: %w", err)
	}

	return parseCaptionXML(captionXML)
}

func (c *Client) fetchVimeoDuration(ctx context.Context, videoURL string) (int, error) {
	endpoint := vimeoOembedEndpoint + "?url=" + url.QueryEscape(videoURL)
	body, err := c.getBody(ctx, endpoint, "")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch vimeo oembed: %w", err)
	}

	var payload struct {
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse vimeo oembed response: %w", err)
	}

	return int(math.Ceil(payload.Duration / 60)), nil
}

func (c *Client) getBody(ctx context.Context, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func extractYouTubeID(videoURL string) string {
	matches := youtubeIDRe.FindStringSubmatch(videoURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// parseISODuration は30秒超の端数を切り上げ、最低1分を返す
func parseISODuration(iso string) int {
	matches := isoDurationRe.FindStringSubmatch(iso)
	if matches == nil {
		return 0
	}

	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])

	total := hours*60 + minutes
	if seconds > 30 {
		total++
	}
	if total == 0 {
		total = 1
	}
	return total
}

func bestThumbnail(thumbnails *youtube.ThumbnailDetails) string {
	if thumbnails == nil {
		return ""
	}
	if thumbnails.Maxres != nil {
		return thumbnails.Maxres.Url
	}
	if thumbnails.High != nil {
		return thumbnails.High.Url
	}
	if thumbnails.Default != nil {
		return thumbnails.Default.Url
	}
	return ""
}

// findCaptionTrackURL は視聴ページ内のプレイヤー情報から字幕トラックURLを探す
// 英語トラックを優先し、なければ先頭のトラックを使う
func findCaptionTrackURL(watchPage []byte) string {
	matches := playerResponseRe.FindSubmatch(watchPage)
	if matches == nil {
		return ""
	}

	var player struct {
		Captions struct {
			PlayerCaptionsTracklistRenderer struct {
				CaptionTracks []struct {
					BaseURL      string `json:"baseUrl"`
					LanguageCode string `json:"languageCode"`
				} `json:"captionTracks"`
			} `json:"playerCaptionsTracklistRenderer"`
		} `json:"captions"`
	}
	if err := json.Unmarshal(matches[1], &player); err != nil {
		return ""
	}

	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return ""
	}

	trackURL := tracks[0].BaseURL
	for _, track := range tracks {
		if strings.Contains(track.LanguageCode, "en") {
			trackURL = track.BaseURL
			break
		}
	}
	return trackURL
}

func parseCaptionXML(data []byte) (string, error) {
	var transcript struct {
		Texts []string `xml:"text"`
	}
	if err := xml.Unmarshal(data, &transcript); err != nil {
		return "", fmt.Errorf("failed to parse caption xml: %w", err)
	}

	lines := make([]string, 0, len(transcript.Texts))
	for _, line := range transcript.Texts {
		line = strings.TrimSpace(html.UnescapeString(line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " "), nil
}
