package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// =====================================================
// Workspace Role Constants (Type Safety)
// =====================================================

// Role represents a workspace role ID (canonical identifier from DB)
type Role string

const (
	// RoleAdmin has full access including member management and audit logs
	RoleAdmin Role = "ws_admin"

	// RoleManager can create, read, update and delete workspace content
	// but cannot manage members or read audit logs
	RoleManager Role = "ws_manager"

	// RoleMember can create and edit content but not delete it
	RoleMember Role = "ws_member"

	// RoleViewer has read-only access to workspace resources
	RoleViewer Role = "ws_viewer"
)

// String returns the string representation of the Role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

// =====================================================
// Workspace Entity (DB Model)
// =====================================================

// Workspace is the collaboration scope that owns projects, tasks and members.
type Workspace struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// WorkspaceRole represents a role definition in the system.
// This maps to the WorkspaceRole table which is the source of truth.
type WorkspaceRole struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// =====================================================
// Workspace Member Entity (DB Model)
// =====================================================

// WorkspaceMember represents the membership of an actor in a workspace.
// Junction table mapping actors to workspaces with their assigned roles.
// Unique per (actorId, workspaceId).
type WorkspaceMember struct {
	ActorID     string `json:"actorId" db:"actor_id"`
	WorkspaceID string `json:"workspaceId" db:"workspace_id"`

	Role Role `json:"role" db:"role"`

	// Invitation metadata
	InvitedBy  *string    `json:"invitedBy,omitempty" db:"invited_by"`
	InvitedAt  time.Time  `json:"invitedAt" db:"invited_at"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty" db:"accepted_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsPending returns true if the member invitation has not been accepted yet
func (m *WorkspaceMember) IsPending() bool {
	return m.AcceptedAt == nil
}

// =====================================================
// Member Request DTOs
// =====================================================

// InviteMemberRequest is the payload for inviting an actor to a workspace.
type InviteMemberRequest struct {
	ActorID string `json:"actorId" validate:"required"`
	Role    Role   `json:"role" validate:"required,oneof=ws_admin ws_manager ws_member ws_viewer"`
}

// Validate validates the InviteMemberRequest.
func (r *InviteMemberRequest) Validate() error {
	r.ActorID = strings.TrimSpace(r.ActorID)
	validate := validator.New()
	return validate.Struct(r)
}

// UpdateMemberRoleRequest changes the workspace-local role of a member.
// Demoting the last ws_admin of a workspace is rejected by the service.
type UpdateMemberRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=ws_admin ws_manager ws_member ws_viewer"`
}

// Validate validates the UpdateMemberRoleRequest.
func (r *UpdateMemberRoleRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// MemberListResponse is the member listing payload.
type MemberListResponse struct {
	Data []WorkspaceMember `json:"data"`
}
