package domain

import "time"

// Project is the collaboration boundary inside a workspace. Realtime rooms
// are keyed per project, so a task mutation only reaches clients that joined
// that project's room.
type Project struct {
	ID          string  `json:"id" db:"id"`
	WorkspaceID string  `json:"workspaceId" db:"workspace_id"`
	Name        string  `json:"name" db:"name"`
	Description *string `json:"description,omitempty" db:"description"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
