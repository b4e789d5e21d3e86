package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/lockin-app/lockin-rag/internal/core/resource"
)

// ResourceRepository は core/resource.Repository を実装する PostgreSQL リポジトリ。
type ResourceRepository struct {
	pool *pgxpool.Pool
}

// NewResourceRepository は新しい ResourceRepository を返す。
func NewResourceRepository(pool *pgxpool.Pool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

var _ resource.Repository = (*ResourceRepository)(nil)

const resourceColumns = `id, user_id, url, file_path, type, title, summary, content_text,
	thumbnail_url, source_domain, tags, difficulty, estimated_time_minutes, notes,
	is_read, is_favorite, is_archived, indexed_at, created_at, updated_at`

func scanResource(row pgx.Row) (*resource.Resource, error) {
	var r resource.Resource
	var resType, difficulty string
	err := row.Scan(
		&r.ID, &r.UserID, &r.URL, &r.FilePath, &resType, &r.Title, &r.Summary, &r.ContentText,
		&r.ThumbnailURL, &r.SourceDomain, &r.Tags, &difficulty, &r.EstimatedTimeMinutes, &r.Notes,
		&r.IsRead, &r.IsFavorite, &r.IsArchived, &r.IndexedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Type = resource.Type(resType)
	r.Difficulty = resource.Difficulty(difficulty)
	return &r, nil
}

func (repo *ResourceRepository) GetByID(ctx context.Context, id uuid.UUID) (mo.Option[*resource.Resource], error) {
	row := repo.pool.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)

	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*resource.Resource](), nil
		}
		return mo.None[*resource.Resource](), fmt.Errorf("failed to get resource: %w", err)
	}
	return mo.Some(r), nil
}

func (repo *ResourceRepository) List(ctx context.Context, filter resource.ListFilter) ([]*resource.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE user_id = $1`
	args := []any{filter.UserID}

	if t, ok := filter.Type.Get(); ok {
		args = append(args, string(t))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if tag, ok := filter.Tag.Get(); ok {
		args = append(args, tag)
		query += fmt.Sprintf(" AND $%d = ANY(tags)", len(args))
	}
	if archived, ok := filter.IsArchived.Get(); ok {
		args = append(args, archived)
		query += fmt.Sprintf(" AND is_archived = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := repo.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var results []*resource.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (repo *ResourceRepository) Create(ctx context.Context, r *resource.Resource) error {
	_, err := repo.pool.Exec(ctx, `
		INSERT INTO resources (
			id, user_id, url, file_path, type, title, summary, content_text,
			thumbnail_url, source_domain, tags, difficulty, estimated_time_minutes, notes,
			is_read, is_favorite, is_archived, indexed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)`,
		r.ID, r.UserID, r.URL, r.FilePath, string(r.Type), r.Title, r.Summary, r.ContentText,
		r.ThumbnailURL, r.SourceDomain, r.Tags, string(r.Difficulty), r.EstimatedTimeMinutes, r.Notes,
		r.IsRead, r.IsFavorite, r.IsArchived, r.IndexedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// Update は設定されたフィールドだけをSET句に展開して更新する
func (repo *ResourceRepository) Update(ctx context.Context, id uuid.UUID, update resource.Update) (*resource.Resource, error) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Type != nil {
		add("type", string(*update.Type))
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Summary != nil {
		add("summary", *update.Summary)
	}
	if update.ContentText != nil {
		add("content_text", *update.ContentText)
	}
	if update.ThumbnailURL != nil {
		add("thumbnail_url", *update.ThumbnailURL)
	}
	if update.SourceDomain != nil {
		add("source_domain", *update.SourceDomain)
	}
	if update.Tags != nil {
		add("tags", resource.NormalizeTags(*update.Tags))
	}
	if update.Difficulty != nil {
		add("difficulty", string(*update.Difficulty))
	}
	if update.EstimatedTimeMinutes != nil {
		add("estimated_time_minutes", *update.EstimatedTimeMinutes)
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}
	if update.IsRead != nil {
		add("is_read", *update.IsRead)
	}
	if update.IsFavorite != nil {
		add("is_favorite", *update.IsFavorite)
	}
	if update.IsArchived != nil {
		add("is_archived", *update.IsArchived)
	}
	if update.IndexedAt != nil {
		add("indexed_at", *update.IndexedAt)
	}

	if len(sets) == 0 {
		opt, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r, ok := opt.Get()
		if !ok {
			return nil, resource.ErrNotFound
		}
		return r, nil
	}

	add("updated_at", time.Now())
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE resources SET %s WHERE id = $%d RETURNING `+resourceColumns,
		strings.Join(sets, ", "), len(args),
	)

	r, err := scanResource(repo.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resource.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}
	return r, nil
}

func (repo *ResourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := repo.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return resource.ErrNotFound
	}
	return nil
}
