package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Priority represents the priority of a task (native PostgreSQL ENUM).
// Schema: public."Priority" ('LOW', 'MEDIUM', 'HIGH', 'URGENT')
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValid checks that the Priority value is one of the defined constants.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Scan implements sql.Scanner to read the ENUM from PostgreSQL.
func (p *Priority) Scan(src interface{}) error {
	if src == nil {
		*p = PriorityMedium // default
		return nil
	}

	var str string
	switch v := src.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Priority", src)
	}

	*p = Priority(str)
	if !p.IsValid() {
		return fmt.Errorf("invalid Priority value: %s", str)
	}
	return nil
}

// Value implements driver.Valuer to write the ENUM to PostgreSQL.
func (p Priority) Value() (driver.Value, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid Priority value: %s", string(p))
	}
	return string(p), nil
}

// TaskStatus represents the board status of a task (native PostgreSQL ENUM).
// Schema: public."TaskStatus" ('BACKLOG', 'TODO', 'IN_PROGRESS', 'IN_REVIEW', 'DONE', 'CANCELLED')
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "BACKLOG"
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusInReview   TaskStatus = "IN_REVIEW"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsValid checks that the TaskStatus value is one of the defined constants.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusInReview, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

// Scan implements sql.Scanner to read the ENUM from PostgreSQL.
func (s *TaskStatus) Scan(src interface{}) error {
	if src == nil {
		*s = TaskStatusBacklog // default
		return nil
	}

	var str string
	switch v := src.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into TaskStatus", src)
	}

	*s = TaskStatus(str)
	if !s.IsValid() {
		return fmt.Errorf("invalid TaskStatus value: %s", str)
	}
	return nil
}

// Value implements driver.Valuer to write the ENUM to PostgreSQL.
func (s TaskStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid TaskStatus value: %s", string(s))
	}
	return string(s), nil
}

// Task represents a task on a project board.
//
// Version is the optimistic-concurrency stamp: it is incremented on every
// successful write and compared against the caller-supplied expectedVersion
// on content edits. Status moves (drag-and-drop) are last-write-wins and do
// not compare versions.
type Task struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspaceId" db:"workspace_id"`
	ProjectID   string `json:"projectId" db:"project_id"`

	Title       string  `json:"title" db:"title"`
	Description *string `json:"description,omitempty" db:"description"`

	Status   TaskStatus `json:"status" db:"status"`
	Priority Priority   `json:"priority" db:"priority"`

	// Owner/creator and optional assignee
	ActorID    string  `json:"actorId" db:"owner_id"`
	AssignedTo *string `json:"assignedTo,omitempty" db:"assigned_to"`

	// Monotonic version stamp, bumped atomically with every write
	Version int64 `json:"version" db:"version"`

	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	CompletedAt *time.Time `json:"completedAt,omitempty" db:"completed_at"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// CreateTaskRequest is the DTO for task creation.
//
// WorkspaceID is always injected from the path parameter and ActorID from
// the JWT claims. New tasks start at version 1.
type CreateTaskRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Title     string `json:"title" validate:"required,min=1,max=500"`

	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`

	Status   *TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=BACKLOG TODO IN_PROGRESS IN_REVIEW DONE CANCELLED"`
	Priority *Priority   `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`

	AssignedTo *string    `json:"assignedTo,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

// Validate validates the CreateTaskRequest. Title is trimmed first.
func (r *CreateTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	validate := validator.New()
	return validate.Struct(r)
}

// UpdateTaskRequest is the DTO for deliberate content edits (PATCH semantics).
//
// ExpectedVersion is mandatory: the edit only applies if the stored version
// still matches, otherwise the caller gets a CONFLICT and must refetch.
// All content fields are pointers - nil means "do not modify".
// Status changes go through MoveTaskRequest on the :move endpoint instead.
type UpdateTaskRequest struct {
	ExpectedVersion int64 `json:"expectedVersion" validate:"required,min=1"`

	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`

	Priority   *Priority  `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssignedTo *string    `json:"assignedTo,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
}

// Validate validates the UpdateTaskRequest. String fields are trimmed first.
func (r *UpdateTaskRequest) Validate() error {
	if r.Title != nil {
		trimmed := strings.TrimSpace(*r.Title)
		r.Title = &trimmed
	}
	validate := validator.New()
	return validate.Struct(r)
}

// MoveTaskRequest is the DTO for board drag-and-drop status changes.
//
// Endpoint: POST /workspaces/{workspaceId}/tasks/{taskId}:move
//
// Moves carry no expectedVersion on purpose: concurrent drags resolve
// last-write-wins, which matches how the board behaves for users. The
// version is still bumped so content editors holding a stale version
// conflict as expected.
type MoveTaskRequest struct {
	ToStatus TaskStatus `json:"toStatus" validate:"required,oneof=BACKLOG TODO IN_PROGRESS IN_REVIEW DONE CANCELLED"`
}

// Validate validates the MoveTaskRequest.
func (r *MoveTaskRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ListTasksParams are the parameters for task listings.
//
// WorkspaceID is always required (multi-tenant isolation).
type ListTasksParams struct {
	WorkspaceID string

	// Optional filters
	ProjectID  *string
	Status     *TaskStatus
	Priority   *Priority
	AssignedTo *string
	ActorID    *string // owner

	// Pagination
	Limit  int
	Cursor *string // RFC3339 timestamp
}

// Normalize applies defaults to the listing parameters.
func (p *ListTasksParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
}

// TaskListResponse is the paginated task listing.
type TaskListResponse struct {
	Data []Task `json:"data"`
	Meta struct {
		HasNextPage bool    `json:"hasNextPage"`
		NextCursor  *string `json:"nextCursor,omitempty"`
	} `json:"meta"`
}
