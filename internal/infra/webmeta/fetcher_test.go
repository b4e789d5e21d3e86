package webmeta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Fallback Title</title>
	<meta property="og:title" content="Understanding Goroutines">
	<meta property="og:description" content="A deep dive into Go concurrency.">
	<meta property="og:image" content="https://example.com/cover.png">
	<meta property="og:site_name" content="Go Blog">
	<meta property="og:type" content="article">
</head>
<body>
	<nav>Home | About</nav>
	<script>console.log("tracking");</script>
	<article>
		<h1>Understanding Goroutines</h1>
		<p>Goroutines are lightweight threads managed by the Go runtime.</p>
	</article>
	<footer>Copyright</footer>
</body>
</html>`

const bareHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Plain Page</title>
	<meta name="description" content="No open graph here.">
</head>
<body><p>hello</p></body>
</html>`

func newTestServer(t *testing.T, html string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetcher_FetchMetadata(t *testing.T) {
	t.Run("Open Graphタグを優先して取得する", func(t *testing.T) {
		server := newTestServer(t, articleHTML)
		fetcher := NewFetcher()

		meta, err := fetcher.FetchMetadata(context.Background(), server.URL)
		require.NoError(t, err)

		assert.Equal(t, "Understanding Goroutines", meta.Title)
		assert.Equal(t, "A deep dive into Go concurrency.", meta.Description)
		assert.Equal(t, "https://example.com/cover.png", meta.ImageURL)
		assert.Equal(t, "Go Blog", meta.SiteName)
		assert.Equal(t, "article", meta.Type)
	})

	t.Run("Open Graphがない場合はtitleタグとmeta descriptionにフォールバックする", func(t *testing.T) {
		server := newTestServer(t, bareHTML)
		fetcher := NewFetcher()

		meta, err := fetcher.FetchMetadata(context.Background(), server.URL)
		require.NoError(t, err)

		assert.Equal(t, "Plain Page", meta.Title)
		assert.Equal(t, "No open graph here.", meta.Description)
		assert.Empty(t, meta.Type)
	})

	t.Run("HTTPエラーステータスはエラーを返す", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		t.Cleanup(server.Close)
		fetcher := NewFetcher()

		_, err := fetcher.FetchMetadata(context.Background(), server.URL)
		assert.Error(t, err)
	})

	t.Run("http以外のスキームは拒否する", func(t *testing.T) {
		fetcher := NewFetcher()
		_, err := fetcher.FetchMetadata(context.Background(), "ftp://example.com")
		assert.Error(t, err)
	})
}

func TestFetcher_FetchContent(t *testing.T) {
	server := newTestServer(t, articleHTML)
	fetcher := NewFetcher()

	content, err := fetcher.FetchContent(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, content, "Understanding Goroutines")
	assert.Contains(t, content, "lightweight threads")
	assert.NotContains(t, content, "console.log")
	assert.NotContains(t, content, "Home | About")
	assert.NotContains(t, content, "Copyright")
}
