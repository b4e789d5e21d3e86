package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

type stubRepo struct {
	resources map[uuid.UUID]*resource.Resource
}

func newStubRepo(resources ...*resource.Resource) *stubRepo {
	m := make(map[uuid.UUID]*resource.Resource, len(resources))
	for _, r := range resources {
		m[r.ID] = r
	}
	return &stubRepo{resources: m}
}

func (r *stubRepo) GetByID(ctx context.Context, id uuid.UUID) (mo.Option[*resource.Resource], error) {
	if res, ok := r.resources[id]; ok {
		return mo.Some(res), nil
	}
	return mo.None[*resource.Resource](), nil
}

func (r *stubRepo) List(ctx context.Context, filter resource.ListFilter) ([]*resource.Resource, error) {
	return nil, nil
}

func (r *stubRepo) Create(ctx context.Context, res *resource.Resource) error {
	r.resources[res.ID] = res
	return nil
}

func (r *stubRepo) Update(ctx context.Context, id uuid.UUID, update resource.Update) (*resource.Resource, error) {
	res, ok := r.resources[id]
	if !ok {
		return nil, resource.ErrNotFound
	}
	update.Apply(res)
	return res, nil
}

func (r *stubRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.resources, id)
	return nil
}

type stubPageFetcher struct {
	meta       *PageMetadata
	content    string
	metaErr    error
	contentErr error
	fetchCount int
}

func (f *stubPageFetcher) FetchMetadata(ctx context.Context, url string) (*PageMetadata, error) {
	f.fetchCount++
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.meta, nil
}

func (f *stubPageFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	if f.contentErr != nil {
		return "", f.contentErr
	}
	return f.content, nil
}

type stubVideoFetcher struct {
	details       *VideoDetails
	detailsErr    error
	duration      int
	transcript    string
	transcriptErr error
}

func (f *stubVideoFetcher) FetchDetails(ctx context.Context, url string) (*VideoDetails, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details, nil
}

func (f *stubVideoFetcher) FetchDuration(ctx context.Context, url string) (int, error) {
	return f.duration, nil
}

func (f *stubVideoFetcher) FetchTranscript(ctx context.Context, url string) (string, error) {
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	return f.transcript, nil
}

type stubChatClient struct {
	reply string
	err   error
	calls int
}

func (c *stubChatClient) Chat(ctx context.Context, messages []prompt.Message) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type stubEnqueuer struct {
	indexed    []uuid.UUID
	classified []uuid.UUID
}

func (e *stubEnqueuer) EnqueueEnrich(id uuid.UUID)   {}
func (e *stubEnqueuer) EnqueueIndex(id uuid.UUID)    { e.indexed = append(e.indexed, id) }
func (e *stubEnqueuer) EnqueueClassify(id uuid.UUID) { e.classified = append(e.classified, id) }

func newTestService(repo *stubRepo, page *stubPageFetcher, video *stubVideoFetcher, chat *stubChatClient, enq *stubEnqueuer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, page, video, chat, enq, WithEnrichLogger(logger))
}

func newArticleResource(url string) *resource.Resource {
	return &resource.Resource{
		ID:     uuid.New(),
		UserID: uuid.New(),
		URL:    url,
		Type:   resource.TypeArticle,
		Title:  url, // 仮タイトル
	}
}

func TestEnrich_AdoptsMetadataAndDefaultsArticleTime(t *testing.T) {
	r := newArticleResource("https://example.com/article")
	repo := newStubRepo(r)
	page := &stubPageFetcher{
		meta: &PageMetadata{
			Title:       "Understanding Goroutines",
			Description: "A deep dive into Go concurrency.",
			ImageURL:    "https://example.com/og.png",
		},
		content: "# Understanding Goroutines\n\nGoroutines are lightweight threads.",
	}
	enq := &stubEnqueuer{}
	svc := newTestService(repo, page, &stubVideoFetcher{}, &stubChatClient{reply: "Tags: go, concurrency\nDifficulty: Intermediate"}, enq)

	require.NoError(t, svc.Enrich(context.Background(), r.ID))

	assert.Equal(t, "Understanding Goroutines", r.Title)
	assert.Equal(t, "A deep dive into Go concurrency.", r.Summary)
	assert.Equal(t, "https://example.com/og.png", r.ThumbnailURL)
	assert.NotEmpty(t, r.ContentText)
	assert.Equal(t, 5, r.EstimatedTimeMinutes)
	// 本文が新たに設定されたのでインデックス化が投入される
	assert.Len(t, enq.indexed, 1)
	assert.Len(t, enq.classified, 1)
}

func TestEnrich_Idempotent(t *testing.T) {
	r := newArticleResource("https://example.com/article")
	repo := newStubRepo(r)
	page := &stubPageFetcher{
		meta:    &PageMetadata{Title: "Title A", Description: "Desc A"},
		content: "body text",
	}
	enq := &stubEnqueuer{}
	svc := newTestService(repo, page, &stubVideoFetcher{}, &stubChatClient{reply: "Tags: go\nDifficulty: Beginner"}, enq)

	require.NoError(t, svc.Enrich(context.Background(), r.ID))
	first := *r

	require.NoError(t, svc.Enrich(context.Background(), r.ID))
	assert.Equal(t, first.Title, r.Title)
	assert.Equal(t, first.Summary, r.Summary)
	assert.Equal(t, first.ContentText, r.ContentText)
	assert.Equal(t, first.Tags, r.Tags)
	assert.Equal(t, first.EstimatedTimeMinutes, r.EstimatedTimeMinutes)
	// 2回目は本文が既にあるのでインデックス化は増えない
	assert.Len(t, enq.indexed, 1)
}

func TestEnrich_UserTagsNeverOverwritten(t *testing.T) {
	r := &resource.Resource{
		ID:    uuid.New(),
		URL:   "https://www.youtube.com/watch?v=abc12345678",
		Type:  resource.TypeVideo,
		Title: "https://www.youtube.com/watch?v=abc12345678",
		Tags:  []string{"my-tag"},
	}
	repo := newStubRepo(r)
	video := &stubVideoFetcher{
		details: &VideoDetails{
			Title:           "Go Talk",
			DurationMinutes: 42,
			Tags:            []string{"api-tag-1", "api-tag-2"},
		},
		transcript: "hello transcript",
	}
	enq := &stubEnqueuer{}
	svc := newTestService(repo, &stubPageFetcher{meta: &PageMetadata{}}, video, &stubChatClient{reply: "Difficulty: Advanced"}, enq)

	require.NoError(t, svc.Enrich(context.Background(), r.ID))

	assert.Equal(t, []string{"my-tag"}, r.Tags)
	assert.Equal(t, 42, r.EstimatedTimeMinutes)
	assert.Equal(t, "hello transcript", r.ContentText)
}

func TestEnrich_VideoDetailsFailureFallsBackToDuration(t *testing.T) {
	r := &resource.Resource{
		ID:    uuid.New(),
		URL:   "https://vimeo.com/123456",
		Type:  resource.TypeVideo,
		Title: "My Video",
	}
	repo := newStubRepo(r)
	video := &stubVideoFetcher{
		detailsErr: errors.New("api unavailable"),
		duration:   17,
	}
	enq := &stubEnqueuer{}
	svc := newTestService(repo, &stubPageFetcher{meta: &PageMetadata{}}, video, &stubChatClient{reply: "Tags: video\nDifficulty: Beginner"}, enq)

	require.NoError(t, svc.Enrich(context.Background(), r.ID))

	assert.Equal(t, 17, r.EstimatedTimeMinutes)
	assert.Equal(t, "My Video", r.Title)
}

func TestEnrich_FallbackClassificationAppliesOnlyEmptyFields(t *testing.T) {
	r := newArticleResource("https://example.com/post")
	r.Difficulty = resource.DifficultyAdvanced // ユーザーが設定済み
	repo := newStubRepo(r)
	page := &stubPageFetcher{meta: &PageMetadata{Title: "Post"}, content: "text"}
	chat := &stubChatClient{reply: "Tags: rust, wasm\nDifficulty: Beginner"}
	svc := newTestService(repo, page, &stubVideoFetcher{}, chat, &stubEnqueuer{})

	require.NoError(t, svc.Enrich(context.Background(), r.ID))

	assert.Equal(t, []string{"rust", "wasm"}, r.Tags)
	assert.Equal(t, resource.DifficultyAdvanced, r.Difficulty)
}

func TestEnrich_FallbackFailureIsSwallowed(t *testing.T) {
	r := newArticleResource("https://example.com/post")
	repo := newStubRepo(r)
	page := &stubPageFetcher{meta: &PageMetadata{Title: "Post"}, content: "text"}
	chat := &stubChatClient{err: errors.New("rate limited")}
	svc := newTestService(repo, page, &stubVideoFetcher{}, chat, &stubEnqueuer{})

	require.NoError(t, svc.Enrich(context.Background(), r.ID))
	assert.Empty(t, r.Tags)
}

func TestEnrich_UnknownDifficultyIgnored(t *testing.T) {
	r := newArticleResource("https://example.com/post")
	repo := newStubRepo(r)
	page := &stubPageFetcher{meta: &PageMetadata{Title: "Post"}, content: "text"}
	chat := &stubChatClient{reply: "Tags: go\nDifficulty: Expert"}
	svc := newTestService(repo, page, &stubVideoFetcher{}, chat, &stubEnqueuer{})

	require.NoError(t, svc.Enrich(context.Background(), r.ID))
	assert.Equal(t, resource.Difficulty(""), r.Difficulty)
}
