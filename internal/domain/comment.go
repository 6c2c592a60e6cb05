package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Comment is a threaded note on a task.
//
// Comments are versioned like tasks. Editing a comment additionally requires
// authorship: the coarse RBAC grant says "this role may update comments",
// the service layer then checks that the caller is the author. The two
// checks stay separate on purpose.
type Comment struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspaceId" db:"workspace_id"`
	TaskID      string `json:"taskId" db:"task_id"`

	Body     string `json:"body" db:"body"`
	AuthorID string `json:"authorId" db:"author_id"`

	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// CreateCommentRequest is the DTO for posting a comment on a task.
type CreateCommentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=10000"`
}

// Validate validates the CreateCommentRequest. Body is trimmed first.
func (r *CreateCommentRequest) Validate() error {
	r.Body = strings.TrimSpace(r.Body)
	validate := validator.New()
	return validate.Struct(r)
}

// UpdateCommentRequest is the DTO for editing a comment body.
// Version-guarded: stale ExpectedVersion yields a CONFLICT.
type UpdateCommentRequest struct {
	ExpectedVersion int64  `json:"expectedVersion" validate:"required,min=1"`
	Body            string `json:"body" validate:"required,min=1,max=10000"`
}

// Validate validates the UpdateCommentRequest. Body is trimmed first.
func (r *UpdateCommentRequest) Validate() error {
	r.Body = strings.TrimSpace(r.Body)
	validate := validator.New()
	return validate.Struct(r)
}

// ListCommentsParams are the parameters for comment listings.
type ListCommentsParams struct {
	WorkspaceID string
	TaskID      string

	Limit  int
	Cursor *string // RFC3339 timestamp
}

// Normalize applies defaults to the listing parameters.
func (p *ListCommentsParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
}

// CommentListResponse is the paginated comment listing.
type CommentListResponse struct {
	Data []Comment `json:"data"`
	Meta struct {
		HasNextPage bool    `json:"hasNextPage"`
		NextCursor  *string `json:"nextCursor,omitempty"`
	} `json:"meta"`
}
