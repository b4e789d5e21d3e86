package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockin-app/lockin-rag/internal/core/answer"
	"github.com/lockin-app/lockin-rag/internal/core/assist"
	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

type stubResourceService struct {
	created      *resource.Resource
	lastParams   resource.CreateFromURLParams
	lastFile     resource.CreateFromFileParams
	getResult    *resource.Resource
	getErr       error
	deleted      []uuid.UUID
	deleteErr    error
	listResult   []*resource.Resource
	lastFilter   resource.ListFilter
	updateResult *resource.Resource
	updateErr    error
	lastUpdate   resource.Update
}

func (s *stubResourceService) CreateFromURL(ctx context.Context, params resource.CreateFromURLParams) (*resource.Resource, error) {
	s.lastParams = params
	return s.created, nil
}

func (s *stubResourceService) CreateFromFile(ctx context.Context, params resource.CreateFromFileParams) (*resource.Resource, error) {
	s.lastFile = params
	return s.created, nil
}

func (s *stubResourceService) Get(ctx context.Context, id uuid.UUID) (*resource.Resource, error) {
	return s.getResult, s.getErr
}

func (s *stubResourceService) List(ctx context.Context, filter resource.ListFilter) ([]*resource.Resource, error) {
	s.lastFilter = filter
	return s.listResult, nil
}

func (s *stubResourceService) UpdateFields(ctx context.Context, id uuid.UUID, update resource.Update) (*resource.Resource, error) {
	s.lastUpdate = update
	return s.updateResult, s.updateErr
}

func (s *stubResourceService) ToggleFavorite(ctx context.Context, id uuid.UUID) (*resource.Resource, error) {
	return s.updateResult, s.updateErr
}

func (s *stubResourceService) MarkAsRead(ctx context.Context, id uuid.UUID, isRead bool) (*resource.Resource, error) {
	return s.updateResult, s.updateErr
}

func (s *stubResourceService) Delete(ctx context.Context, id uuid.UUID) error {
	s.deleted = append(s.deleted, id)
	return s.deleteErr
}

func (s *stubResourceService) BulkImport(ctx context.Context, userID uuid.UUID, urls []string) ([]*resource.Resource, error) {
	return s.listResult, nil
}

type stubAnswerer struct {
	response    *answer.Response
	err         error
	called      bool
	lastUserID  uuid.UUID
	lastHistory []prompt.Message
}

func (s *stubAnswerer) Answer(ctx context.Context, userID uuid.UUID, question string, history []prompt.Message) (*answer.Response, error) {
	s.called = true
	s.lastUserID = userID
	s.lastHistory = history
	return s.response, s.err
}

type stubChecklist struct {
	items      []string
	err        error
	lastParams assist.ChecklistParams
}

func (s *stubChecklist) Generate(ctx context.Context, params assist.ChecklistParams) ([]string, error) {
	s.lastParams = params
	return s.items, s.err
}

type stubFileParser struct {
	content string
	err     error
}

func (s *stubFileParser) Extract(fileName string, data []byte) (string, error) {
	return s.content, s.err
}

func testResource(id, userID uuid.UUID) *resource.Resource {
	now := time.Now()
	return &resource.Resource{
		ID:        id,
		UserID:    userID,
		URL:       "https://example.com/article",
		Type:      resource.TypeArticle,
		Title:     "Test Article",
		Tags:      []string{"go"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestServer(resources *stubResourceService, answerer *stubAnswerer, checklists *stubChecklist, parser *stubFileParser) http.Handler {
	if resources == nil {
		resources = &stubResourceService{}
	}
	if answerer == nil {
		answerer = &stubAnswerer{}
	}
	if checklists == nil {
		checklists = &stubChecklist{}
	}
	if parser == nil {
		parser = &stubFileParser{}
	}
	return NewRouter(NewHandler(resources, answerer, checklists, parser))
}

func doRequest(t *testing.T, router http.Handler, method, path string, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHandler_Ask(t *testing.T) {
	userID := uuid.New()

	t.Run("回答とソースを返す", func(t *testing.T) {
		answerer := &stubAnswerer{
			response: &answer.Response{
				Type:    answer.TypeMessage,
				Content: "Goroutines are lightweight threads.",
				Sources: []answer.Source{
					{ResourceID: uuid.New(), Title: "Go Guide", Score: 0.9, Excerpt: "goroutines..."},
				},
			},
		}
		router := newTestServer(nil, answerer, nil, nil)

		rec := doRequest(t, router, http.MethodPost, "/api/ask", userID.String(), map[string]any{
			"question": "What are goroutines?",
			"history": []map[string]string{
				{"role": "user", "content": "hi"},
				{"role": "assistant", "content": "hello"},
			},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID, answerer.lastUserID)
		assert.Len(t, answerer.lastHistory, 2)

		var resp askResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "message", resp.Type)
		assert.Equal(t, "Goroutines are lightweight threads.", resp.Content)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "Go Guide", resp.Sources[0].Title)
	})

	t.Run("質問が空なら400", func(t *testing.T) {
		router := newTestServer(nil, nil, nil, nil)
		rec := doRequest(t, router, http.MethodPost, "/api/ask", userID.String(), map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ユーザーIDヘッダがなければ401", func(t *testing.T) {
		router := newTestServer(nil, nil, nil, nil)
		rec := doRequest(t, router, http.MethodPost, "/api/ask", "", map[string]string{"question": "hi"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("最大長を超える質問は切り詰めずに400で拒否する", func(t *testing.T) {
		answerer := &stubAnswerer{}
		router := newTestServer(nil, answerer, nil, nil)

		rec := doRequest(t, router, http.MethodPost, "/api/ask", userID.String(), map[string]string{
			"question": strings.Repeat("a", 5000),
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "too long")
		assert.False(t, answerer.called)
	})
}

func TestHandler_CreateResource(t *testing.T) {
	userID := uuid.New()
	resourceID := uuid.New()

	t.Run("URLからリソースを作成する", func(t *testing.T) {
		resources := &stubResourceService{created: testResource(resourceID, userID)}
		router := newTestServer(resources, nil, nil, nil)

		rec := doRequest(t, router, http.MethodPost, "/api/resources", userID.String(), map[string]any{
			"url":  "https://example.com/article",
			"tags": []string{"Go", "Concurrency"},
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, userID, resources.lastParams.UserID)
		assert.Equal(t, "https://example.com/article", resources.lastParams.URL)
		assert.Equal(t, []string{"Go", "Concurrency"}, resources.lastParams.Tags)
	})

	t.Run("URLが空なら400", func(t *testing.T) {
		router := newTestServer(nil, nil, nil, nil)
		rec := doRequest(t, router, http.MethodPost, "/api/resources", userID.String(), map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_UploadResource(t *testing.T) {
	userID := uuid.New()
	resources := &stubResourceService{created: testResource(uuid.New(), userID)}
	parser := &stubFileParser{content: "extracted body"}
	router := newTestServer(resources, nil, nil, parser)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fw, err := writer.CreateFormFile("file", "notes.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# Notes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/resources/upload", &buf)
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "notes.md", resources.lastFile.FileName)
	assert.Equal(t, "extracted body", resources.lastFile.Content)
	assert.Contains(t, resources.lastFile.FilePath, userID.String())
}

func TestHandler_GetResource(t *testing.T) {
	userID := uuid.New()
	resourceID := uuid.New()

	t.Run("存在するリソースを返す", func(t *testing.T) {
		resources := &stubResourceService{getResult: testResource(resourceID, userID)}
		router := newTestServer(resources, nil, nil, nil)

		rec := doRequest(t, router, http.MethodGet, "/api/resources/"+resourceID.String(), userID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp resourceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, resourceID, resp.ID)
		assert.Equal(t, "Test Article", resp.Title)
		assert.False(t, resp.IsIndexed)
	})

	t.Run("存在しないリソースは404", func(t *testing.T) {
		resources := &stubResourceService{getErr: resource.ErrNotFound}
		router := newTestServer(resources, nil, nil, nil)

		rec := doRequest(t, router, http.MethodGet, "/api/resources/"+uuid.NewString(), userID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("不正なIDは400", func(t *testing.T) {
		router := newTestServer(nil, nil, nil, nil)
		rec := doRequest(t, router, http.MethodGet, "/api/resources/not-a-uuid", userID.String(), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_UpdateResource(t *testing.T) {
	userID := uuid.New()
	resourceID := uuid.New()
	resources := &stubResourceService{updateResult: testResource(resourceID, userID)}
	router := newTestServer(resources, nil, nil, nil)

	rec := doRequest(t, router, http.MethodPatch, "/api/resources/"+resourceID.String(), userID.String(), map[string]any{
		"title":      "New Title",
		"difficulty": "Advanced",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resources.lastUpdate.Title)
	assert.Equal(t, "New Title", *resources.lastUpdate.Title)
	require.NotNil(t, resources.lastUpdate.Difficulty)
	assert.Equal(t, resource.DifficultyAdvanced, *resources.lastUpdate.Difficulty)
	assert.Nil(t, resources.lastUpdate.Summary, "リクエストにないフィールドは変更しない")
}

func TestHandler_DeleteResource(t *testing.T) {
	userID := uuid.New()
	resourceID := uuid.New()
	resources := &stubResourceService{}
	router := newTestServer(resources, nil, nil, nil)

	rec := doRequest(t, router, http.MethodDelete, "/api/resources/"+resourceID.String(), userID.String(), nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, resources.deleted, 1)
	assert.Equal(t, resourceID, resources.deleted[0])
}

func TestHandler_GenerateChecklist(t *testing.T) {
	userID := uuid.New()

	t.Run("チェックリストを返す", func(t *testing.T) {
		checklists := &stubChecklist{items: []string{"Review the PR", "Fix the failing test"}}
		router := newTestServer(nil, nil, checklists, nil)

		rec := doRequest(t, router, http.MethodPost, "/api/checklist", userID.String(), map[string]any{
			"title": "Implement auth",
			"tabs":  []string{"GitHub", "Docs"},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Implement auth", checklists.lastParams.Title)
		assert.Equal(t, []string{"GitHub", "Docs"}, checklists.lastParams.Tabs)
		assert.True(t, strings.Contains(rec.Body.String(), "Review the PR"))
	})

	t.Run("タイトルが空なら400", func(t *testing.T) {
		router := newTestServer(nil, nil, nil, nil)
		rec := doRequest(t, router, http.MethodPost, "/api/checklist", userID.String(), map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Health(t *testing.T) {
	router := newTestServer(nil, nil, nil, nil)
	rec := doRequest(t, router, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
