package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/lockin-app/lockin-rag/internal/core/answer"
	"github.com/lockin-app/lockin-rag/internal/core/assist"
	"github.com/lockin-app/lockin-rag/internal/core/prompt"
	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// maxUploadBytes はアップロードを受け付ける最大ファイルサイズ（20MB）
const maxUploadBytes = 20 << 20

// defaultMaxQuestionLength は質問の最大長の既定値
const defaultMaxQuestionLength = 2000

// ResourceService はリソースCRUDのユースケース
type ResourceService interface {
	CreateFromURL(ctx context.Context, params resource.CreateFromURLParams) (*resource.Resource, error)
	CreateFromFile(ctx context.Context, params resource.CreateFromFileParams) (*resource.Resource, error)
	Get(ctx context.Context, id uuid.UUID) (*resource.Resource, error)
	List(ctx context.Context, filter resource.ListFilter) ([]*resource.Resource, error)
	UpdateFields(ctx context.Context, id uuid.UUID, update resource.Update) (*resource.Resource, error)
	ToggleFavorite(ctx context.Context, id uuid.UUID) (*resource.Resource, error)
	MarkAsRead(ctx context.Context, id uuid.UUID, isRead bool) (*resource.Resource, error)
	Delete(ctx context.Context, id uuid.UUID) error
	BulkImport(ctx context.Context, userID uuid.UUID, urls []string) ([]*resource.Resource, error)
}

// Answerer はRAG回答のユースケース
type Answerer interface {
	Answer(ctx context.Context, userID uuid.UUID, question string, history []prompt.Message) (*answer.Response, error)
}

// ChecklistGenerator は作業再開チェックリスト生成のユースケース
type ChecklistGenerator interface {
	Generate(ctx context.Context, params assist.ChecklistParams) ([]string, error)
}

// FileParser はアップロードファイルからの本文抽出
type FileParser interface {
	Extract(fileName string, data []byte) (string, error)
}

// Handler はHTTP APIのリクエストを各ユースケースへ振り分ける
type Handler struct {
	resources      ResourceService
	answerer       Answerer
	checklists     ChecklistGenerator
	fileParser     FileParser
	maxQuestionLen int
	logger         *slog.Logger
}

type handlerOptions struct {
	maxQuestionLen int
	logger         *slog.Logger
}

type HandlerOption func(*handlerOptions)

// WithHandlerLogger はロガーを設定する
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		o.logger = logger
	}
}

// WithMaxQuestionLength は受け付ける質問の最大長を設定する
func WithMaxQuestionLength(n int) HandlerOption {
	return func(o *handlerOptions) {
		o.maxQuestionLen = n
	}
}

func NewHandler(resources ResourceService, answerer Answerer, checklists ChecklistGenerator, fileParser FileParser, opts ...HandlerOption) *Handler {
	options := &handlerOptions{
		maxQuestionLen: defaultMaxQuestionLength,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Handler{
		resources:      resources,
		answerer:       answerer,
		checklists:     checklists,
		fileParser:     fileParser,
		maxQuestionLen: options.maxQuestionLen,
		logger:         options.logger,
	}
}

type resourceResponse struct {
	ID                   uuid.UUID  `json:"id"`
	URL                  string     `json:"url,omitempty"`
	FilePath             string     `json:"file_path,omitempty"`
	Type                 string     `json:"type"`
	Title                string     `json:"title"`
	Summary              string     `json:"summary,omitempty"`
	ThumbnailURL         string     `json:"thumbnail_url,omitempty"`
	SourceDomain         string     `json:"source_domain,omitempty"`
	Tags                 []string   `json:"tags"`
	Difficulty           string     `json:"difficulty,omitempty"`
	EstimatedTimeMinutes int        `json:"estimated_time_minutes,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	IsRead               bool       `json:"is_read"`
	IsFavorite           bool       `json:"is_favorite"`
	IsArchived           bool       `json:"is_archived"`
	IsIndexed            bool       `json:"is_indexed"`
	IndexedAt            *time.Time `json:"indexed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toResourceResponse(r *resource.Resource) resourceResponse {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return resourceResponse{
		ID:                   r.ID,
		URL:                  r.URL,
		FilePath:             r.FilePath,
		Type:                 string(r.Type),
		Title:                r.Title,
		Summary:              r.Summary,
		ThumbnailURL:         r.ThumbnailURL,
		SourceDomain:         r.SourceDomain,
		Tags:                 tags,
		Difficulty:           string(r.Difficulty),
		EstimatedTimeMinutes: r.EstimatedTimeMinutes,
		Notes:                r.Notes,
		IsRead:               r.IsRead,
		IsFavorite:           r.IsFavorite,
		IsArchived:           r.IsArchived,
		IsIndexed:            r.IsIndexed(),
		IndexedAt:            r.IndexedAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type askRequest struct {
	Question string `json:"question"`
	History  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history,omitempty"`
}

type askResponse struct {
	Type    string       `json:"type"`
	Content string       `json:"content"`
	Sources []sourceItem `json:"sources"`
}

type sourceItem struct {
	ResourceID uuid.UUID `json:"resource_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	Score      float64   `json:"score"`
	Excerpt    string    `json:"excerpt"`
}

// Ask は知識ベースに対する質問へ回答する
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		h.writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	// 超過分を黙って切り詰めるのではなく、ここで同期的に拒否する
	if h.maxQuestionLen > 0 && len(req.Question) > h.maxQuestionLen {
		h.writeError(w, http.StatusBadRequest, "question is too long")
		return
	}

	history := make([]prompt.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, prompt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := h.answerer.Answer(r.Context(), userID, req.Question, history)
	if err != nil {
		h.logger.Error("failed to answer question", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}

	sources := make([]sourceItem, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, sourceItem{
			ResourceID: s.ResourceID,
			Title:      s.Title,
			URL:        s.URL,
			Score:      s.Score,
			Excerpt:    s.Excerpt,
		})
	}

	h.writeJSON(w, http.StatusOK, askResponse{
		Type:    string(resp.Type),
		Content: resp.Content,
		Sources: sources,
	})
}

type createResourceRequest struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Notes string   `json:"notes,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// CreateResource はURLからリソースを登録する
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	created, err := h.resources.CreateFromURL(r.Context(), resource.CreateFromURLParams{
		UserID: userID,
		URL:    req.URL,
		Title:  req.Title,
		Notes:  req.Notes,
		Tags:   req.Tags,
	})
	if err != nil {
		h.logger.Error("failed to create resource", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to create resource")
		return
	}

	h.writeJSON(w, http.StatusCreated, toResourceResponse(created))
}

// UploadResource はmultipart/form-dataのファイルからリソースを登録する
func (h *Handler) UploadResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	content, err := h.fileParser.Extract(header.Filename, data)
	if err != nil {
		h.logger.Warn("file content extraction failed",
			slog.String("fileName", header.Filename),
			slog.String("error", err.Error()),
		)
		content = ""
	}

	created, err := h.resources.CreateFromFile(r.Context(), resource.CreateFromFileParams{
		UserID:    userID,
		FilePath:  fmt.Sprintf("resources/%s/%s", userID, header.Filename),
		FileName:  header.Filename,
		SizeBytes: header.Size,
		Content:   content,
		Notes:     r.FormValue("notes"),
	})
	if err != nil {
		h.logger.Error("failed to create resource from file", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to create resource")
		return
	}

	h.writeJSON(w, http.StatusCreated, toResourceResponse(created))
}

type bulkImportRequest struct {
	URLs []string `json:"urls"`
}

// BulkImport は複数URLをまとめて登録する
func (h *Handler) BulkImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req bulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	created, err := h.resources.BulkImport(r.Context(), userID, req.URLs)
	if err != nil {
		h.logger.Error("bulk import failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to import resources")
		return
	}

	items := make([]resourceResponse, 0, len(created))
	for _, res := range created {
		items = append(items, toResourceResponse(res))
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"imported": len(items),
		"items":    items,
	})
}

// ListResources は条件に合致するリソースの一覧を返す
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	filter := resource.ListFilter{UserID: userID}
	query := r.URL.Query()

	if t := query.Get("type"); t != "" {
		filter.Type = mo.Some(resource.Type(t))
	}
	if tag := query.Get("tag"); tag != "" {
		filter.Tag = mo.Some(tag)
	}
	if archived := query.Get("archived"); archived != "" {
		value, err := strconv.ParseBool(archived)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "archived must be a boolean")
			return
		}
		filter.IsArchived = mo.Some(value)
	}
	if limit := query.Get("limit"); limit != "" {
		value, err := strconv.Atoi(limit)
		if err != nil || value < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = value
	}
	if offset := query.Get("offset"); offset != "" {
		value, err := strconv.Atoi(offset)
		if err != nil || value < 0 {
			h.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = value
	}

	resources, err := h.resources.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list resources", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}

	items := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		items = append(items, toResourceResponse(res))
	}
	h.writeJSON(w, http.StatusOK, items)
}

// GetResource はIDでリソースを返す
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	res, err := h.resources.Get(r.Context(), id)
	if err != nil {
		h.handleResourceError(w, err, "failed to get resource")
		return
	}
	h.writeJSON(w, http.StatusOK, toResourceResponse(res))
}

type updateResourceRequest struct {
	Title                *string   `json:"title,omitempty"`
	Summary              *string   `json:"summary,omitempty"`
	ContentText          *string   `json:"content_text,omitempty"`
	Tags                 *[]string `json:"tags,omitempty"`
	Difficulty           *string   `json:"difficulty,omitempty"`
	EstimatedTimeMinutes *int      `json:"estimated_time_minutes,omitempty"`
	Notes                *string   `json:"notes,omitempty"`
	IsArchived           *bool     `json:"is_archived,omitempty"`
}

// UpdateResource はリソースを部分更新する
// リクエストに含まれないフィールドは変更しない
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	var req updateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := resource.Update{
		Title:                req.Title,
		Summary:              req.Summary,
		ContentText:          req.ContentText,
		Tags:                 req.Tags,
		EstimatedTimeMinutes: req.EstimatedTimeMinutes,
		Notes:                req.Notes,
		IsArchived:           req.IsArchived,
	}
	if req.Difficulty != nil {
		update.Difficulty = resource.Ptr(resource.ParseDifficulty(*req.Difficulty))
	}

	updated, err := h.resources.UpdateFields(r.Context(), id, update)
	if err != nil {
		h.handleResourceError(w, err, "failed to update resource")
		return
	}
	h.writeJSON(w, http.StatusOK, toResourceResponse(updated))
}

// ToggleFavorite はお気に入りフラグを反転する
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	updated, err := h.resources.ToggleFavorite(r.Context(), id)
	if err != nil {
		h.handleResourceError(w, err, "failed to toggle favorite")
		return
	}
	h.writeJSON(w, http.StatusOK, toResourceResponse(updated))
}

type markReadRequest struct {
	IsRead bool `json:"is_read"`
}

// MarkAsRead は既読フラグを設定する
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	// ボディ省略時は既読扱い
	req := markReadRequest{IsRead: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.resources.MarkAsRead(r.Context(), id, req.IsRead)
	if err != nil {
		h.handleResourceError(w, err, "failed to mark resource as read")
		return
	}
	h.writeJSON(w, http.StatusOK, toResourceResponse(updated))
}

// DeleteResource はリソースと対応するチャンクを削除する
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resourceID(w, r)
	if !ok {
		return
	}

	if err := h.resources.Delete(r.Context(), id); err != nil {
		h.handleResourceError(w, err, "failed to delete resource")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checklistRequest struct {
	Title      string   `json:"title"`
	Note       string   `json:"note,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	GitSummary string   `json:"git_summary,omitempty"`
	Tabs       []string `json:"tabs,omitempty"`
}

// GenerateChecklist は作業コンテキストから再開用チェックリストを生成する
func (h *Handler) GenerateChecklist(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.userID(w, r); !ok {
		return
	}

	var req checklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		h.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	items, err := h.checklists.Generate(r.Context(), assist.ChecklistParams{
		Title:      req.Title,
		Note:       req.Note,
		Transcript: req.Transcript,
		GitSummary: req.GitSummary,
		Tabs:       req.Tabs,
	})
	if err != nil {
		h.logger.Error("failed to generate checklist", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to generate checklist")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health は稼働確認エンドポイント
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID はX-User-IDヘッダから対象ユーザーを特定する
// 認証基盤は外部にあり、ここでは識別子の受け渡しだけを行う
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "X-User-ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) resourceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "resourceID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "resource id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleResourceError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, resource.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	h.logger.Error(message, slog.String("error", err.Error()))
	h.writeError(w, http.StatusInternalServerError, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
