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
	// ErrTaskNotFound indicates the task does not exist in the workspace.
	ErrTaskNotFound = errors.New("task not found in workspace")

	// ErrVersionConflict indicates the caller-supplied expectedVersion no
	// longer matches the stored version: the entity was modified by someone
	// else since the caller loaded it. Nothing was written.
	ErrVersionConflict = errors.New("version conflict: entity was modified by someone else")
)

// TaskRepository handles task persistence, including the version-guarded
// update path. The version predicate and the version increment live in one
// conditional UPDATE so the compare and the bump are a single atomic unit
// at the storage layer.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// List retrieves tasks for a workspace with optional filters.
// Multi-tenant isolation enforced by the workspace_id filter.
func (r *TaskRepository) List(ctx context.Context, params domain.ListTasksParams) ([]domain.Task, string, error) {
	query := `
		SELECT id, workspace_id, project_id, title, description, status, priority,
		       owner_id, assigned_to, version, due_date, completed_at,
		       created_at, updated_at, deleted_at
		FROM tasks
		WHERE workspace_id = $1 AND deleted_at IS NULL
	`
	args := []interface{}{params.WorkspaceID}
	argIdx := 2

	if params.ProjectID != nil {
		query += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, *params.ProjectID)
		argIdx++
	}

	if params.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *params.Status)
		argIdx++
	}

	if params.Priority != nil {
		query += fmt.Sprintf(" AND priority = $%d", argIdx)
		args = append(args, *params.Priority)
		argIdx++
	}

	if params.AssignedTo != nil {
		query += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, *params.AssignedTo)
		argIdx++
	}

	if params.ActorID != nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, *params.ActorID)
		argIdx++
	}

	if params.Cursor != nil && *params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339, *params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor format: %w", err)
		}
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, cursorTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, params.Limit+1) // +1 to check if there's a next page

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, params.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, "", err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate tasks: %w", err)
	}

	nextCursor := ""
	if len(tasks) > params.Limit {
		tasks = tasks[:params.Limit]
		nextCursor = tasks[len(tasks)-1].CreatedAt.Format(time.RFC3339)
	}

	return tasks, nextCursor, nil
}

// Get retrieves a single task scoped to the workspace.
func (r *TaskRepository) Get(ctx context.Context, workspaceID, taskID string) (*domain.Task, error) {
	query := `
		SELECT id, workspace_id, project_id, title, description, status, priority,
		       owner_id, assigned_to, version, due_date, completed_at,
		       created_at, updated_at, deleted_at
		FROM tasks
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
	`

	row := r.pool.QueryRow(ctx, query, taskID, workspaceID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return &t, nil
}

// Create inserts a new task. New tasks start at version 1.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (
			id, workspace_id, project_id, title, description, status, priority,
			owner_id, assigned_to, version, due_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)
		RETURNING version, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		task.ID, task.WorkspaceID, task.ProjectID, task.Title, task.Description,
		task.Status, task.Priority, task.ActorID, task.AssignedTo, task.DueDate,
	).Scan(&task.Version, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	return nil
}

// UpdateWithVersion applies a content edit if and only if the stored version
// still equals expectedVersion. The data write and the version increment are
// one conditional UPDATE: either both happen or neither does.
//
// Returns the new version on success, ErrVersionConflict when the version
// predicate failed, ErrTaskNotFound when the task does not exist.
func (r *TaskRepository) UpdateWithVersion(ctx context.Context, workspaceID, taskID string, expectedVersion int64, req *domain.UpdateTaskRequest) (int64, error) {
	setClauses := ""
	args := []interface{}{taskID, workspaceID, expectedVersion}
	argIdx := 4

	appendSet := func(column string, value interface{}) {
		setClauses += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, value)
		argIdx++
	}

	if req.Title != nil {
		appendSet("title", *req.Title)
	}
	if req.Description != nil {
		appendSet("description", *req.Description)
	}
	if req.Priority != nil {
		appendSet("priority", *req.Priority)
	}
	if req.AssignedTo != nil {
		appendSet("assigned_to", *req.AssignedTo)
	}
	if req.DueDate != nil {
		appendSet("due_date", *req.DueDate)
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET version = version + 1, updated_at = now()%s
		WHERE id = $1 AND workspace_id = $2 AND version = $3 AND deleted_at IS NULL
		RETURNING version
	`, setClauses)

	var newVersion int64
	err := r.pool.QueryRow(ctx, query, args...).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("update task: %w", err)
	}

	// Zero rows: distinguish a stale version from a missing task.
	if _, getErr := r.Get(ctx, workspaceID, taskID); getErr != nil {
		return 0, getErr
	}
	return 0, ErrVersionConflict
}

// Move changes the board status without a version predicate: concurrent
// drags are last-write-wins by design. The version is still bumped so
// content editors holding a stale copy conflict on their next save.
func (r *TaskRepository) Move(ctx context.Context, workspaceID, taskID string, toStatus domain.TaskStatus) (int64, error) {
	query := `
		UPDATE tasks
		SET status = $3,
		    completed_at = CASE WHEN $3 = 'DONE' THEN now() ELSE NULL END,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
		RETURNING version
	`

	var newVersion int64
	err := r.pool.QueryRow(ctx, query, taskID, workspaceID, toStatus).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTaskNotFound
		}
		return 0, fmt.Errorf("move task: %w", err)
	}

	return newVersion, nil
}

// SoftDelete marks the task deleted. Deletes are terminal, so no version
// predicate is applied.
func (r *TaskRepository) SoftDelete(ctx context.Context, workspaceID, taskID string) error {
	query := `
		UPDATE tasks
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, taskID, workspaceID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// scanTask scans one task row from either a pgx.Row or pgx.Rows.
func scanTask(row pgx.Row) (domain.Task, error) {
	var t domain.Task
	var description, assignedTo pgtype.Text
	var dueDate, completedAt, deletedAt pgtype.Timestamptz

	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &description,
		&t.Status, &t.Priority, &t.ActorID, &assignedTo, &t.Version,
		&dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, pgx.ErrNoRows
		}
		return t, fmt.Errorf("scan task: %w", err)
	}

	t.Description = toStrPtr(description)
	t.AssignedTo = toStrPtr(assignedTo)
	t.DueDate = toTimePtr(dueDate)
	t.CompletedAt = toTimePtr(completedAt)
	t.DeletedAt = toTimePtr(deletedAt)

	return t, nil
}
