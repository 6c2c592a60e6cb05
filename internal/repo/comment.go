package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tandem-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrCommentNotFound indicates the comment does not exist in the workspace.
	ErrCommentNotFound = errors.New("comment not found in workspace")
)

// CommentRepository handles comment persistence. Comment edits go through
// the same conditional version UPDATE as tasks.
type CommentRepository struct {
	pool *pgxpool.Pool
}

func NewCommentRepository(pool *pgxpool.Pool) *CommentRepository {
	return &CommentRepository{pool: pool}
}

// List retrieves comments for a task, oldest first.
func (r *CommentRepository) List(ctx context.Context, params domain.ListCommentsParams) ([]domain.Comment, string, error) {
	query := `
		SELECT id, workspace_id, task_id, body, author_id, version,
		       created_at, updated_at, deleted_at
		FROM comments
		WHERE workspace_id = $1 AND task_id = $2 AND deleted_at IS NULL
	`
	args := []interface{}{params.WorkspaceID, params.TaskID}
	argIdx := 3

	if params.Cursor != nil && *params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339, *params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(" AND created_at > $%d", argIdx)
		args = append(args, cursorTime)
		argIdx++
	}

	query += " ORDER BY created_at ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, params.Limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0, params.Limit)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, "", err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate comments: %w", err)
	}

	nextCursor := ""
	if len(comments) > params.Limit {
		comments = comments[:params.Limit]
		nextCursor = comments[len(comments)-1].CreatedAt.Format(time.RFC3339)
	}

	return comments, nextCursor, nil
}

// Get retrieves a single comment scoped to the workspace.
func (r *CommentRepository) Get(ctx context.Context, workspaceID, commentID string) (*domain.Comment, error) {
	query := `
		SELECT id, workspace_id, task_id, body, author_id, version,
		       created_at, updated_at, deleted_at
		FROM comments
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
	`

	row := r.pool.QueryRow(ctx, query, commentID, workspaceID)
	c, err := scanComment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}

	return &c, nil
}

// Create inserts a new comment at version 1.
func (r *CommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	query := `
		INSERT INTO comments (id, workspace_id, task_id, body, author_id, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING version, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		comment.ID, comment.WorkspaceID, comment.TaskID, comment.Body, comment.AuthorID,
	).Scan(&comment.Version, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	return nil
}

// UpdateWithVersion rewrites the comment body if the stored version still
// equals expectedVersion. Same atomic compare-and-bump as tasks.
func (r *CommentRepository) UpdateWithVersion(ctx context.Context, workspaceID, commentID string, expectedVersion int64, body string) (int64, error) {
	query := `
		UPDATE comments
		SET body = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND version = $3 AND deleted_at IS NULL
		RETURNING version
	`

	var newVersion int64
	err := r.pool.QueryRow(ctx, query, commentID, workspaceID, expectedVersion, body).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("update comment: %w", err)
	}

	if _, getErr := r.Get(ctx, workspaceID, commentID); getErr != nil {
		return 0, getErr
	}
	return 0, ErrVersionConflict
}

// SoftDelete marks the comment deleted.
func (r *CommentRepository) SoftDelete(ctx context.Context, workspaceID, commentID string) error {
	query := `
		UPDATE comments
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, commentID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}

	return nil
}

// scanComment scans one comment row from either a pgx.Row or pgx.Rows.
func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	var deletedAt pgtype.Timestamptz

	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.TaskID, &c.Body, &c.AuthorID, &c.Version,
		&c.CreatedAt, &c.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, pgx.ErrNoRows
		}
		return c, fmt.Errorf("scan comment: %w", err)
	}

	c.DeletedAt = toTimePtr(deletedAt)

	return c, nil
}
