package repo

import (
	"context"
	"errors"
	"fmt"

	"tandem-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrMemberNotFound indicates the actor is not a member of the workspace
	ErrMemberNotFound = errors.New("actor is not a member of this workspace")

	// ErrMemberExists indicates the actor already has a membership in the workspace
	ErrMemberExists = errors.New("actor is already a member of this workspace")

	// ErrLastAdmin indicates the operation would leave the workspace without
	// any ws_admin member. A workspace must always retain at least one.
	ErrLastAdmin = errors.New("workspace must retain at least one admin")

	// ErrInvalidRole indicates the role ID is not a known workspace role
	ErrInvalidRole = errors.New("invalid workspace role")

	// ErrProjectNotFound indicates the project does not exist in the workspace
	ErrProjectNotFound = errors.New("project not found in workspace")
)

// WorkspaceRepository handles database operations for workspace membership,
// roles and projects. It is the source of truth the ability resolver
// consults on every request: roles are read fresh, never cached.
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a new WorkspaceRepository instance.
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

// GetMemberRole retrieves the workspace role for an actor in a workspace.
// This is the primary authorization lookup called by the gate on every
// protected request.
//
// Security: this enforces multi-tenant isolation - an actor cannot act in a
// workspace they do not belong to, and ErrMemberNotFound maps to 403.
func (r *WorkspaceRepository) GetMemberRole(ctx context.Context, actorID, workspaceID string) (domain.Role, error) {
	query := `
		SELECT role
		FROM workspace_members
		WHERE actor_id = $1 AND workspace_id = $2
	`

	var roleName string
	err := r.pool.QueryRow(ctx, query, actorID, workspaceID).Scan(&roleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMemberNotFound
		}
		return "", fmt.Errorf("query workspace member role: %w", err)
	}

	role := domain.Role(roleName)

	// Protects against data corruption: an unexpected role string resolves
	// to a deny-everything ability anyway, but surfacing it here makes the
	// corruption visible instead of silently locking the member out.
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, roleName)
	}

	return role, nil
}

// ListMembers returns every membership of the workspace.
func (r *WorkspaceRepository) ListMembers(ctx context.Context, workspaceID string) ([]domain.WorkspaceMember, error) {
	query := `
		SELECT actor_id, workspace_id, role, invited_by, invited_at, accepted_at,
		       created_at, updated_at
		FROM workspace_members
		WHERE workspace_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query workspace members: %w", err)
	}
	defer rows.Close()

	var members []domain.WorkspaceMember
	for rows.Next() {
		var m domain.WorkspaceMember
		var invitedBy pgtype.Text
		var acceptedAt pgtype.Timestamptz

		err := rows.Scan(
			&m.ActorID, &m.WorkspaceID, &m.Role, &invitedBy, &m.InvitedAt,
			&acceptedAt, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan workspace member: %w", err)
		}

		m.InvitedBy = toStrPtr(invitedBy)
		m.AcceptedAt = toTimePtr(acceptedAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspace members: %w", err)
	}

	return members, nil
}

// AddMember inserts a new membership. Unique per (actor, workspace).
func (r *WorkspaceRepository) AddMember(ctx context.Context, member *domain.WorkspaceMember) error {
	query := `
		INSERT INTO workspace_members (actor_id, workspace_id, role, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING invited_at, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		member.ActorID, member.WorkspaceID, member.Role, member.InvitedBy,
	).Scan(&member.InvitedAt, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrMemberExists
		}
		return fmt.Errorf("insert workspace member: %w", err)
	}

	return nil
}

// UpdateMemberRole changes a member's workspace role inside a transaction
// that locks the workspace's membership rows. If the change would demote
// the last remaining admin, the transaction rolls back with ErrLastAdmin.
func (r *WorkspaceRepository) UpdateMemberRole(ctx context.Context, workspaceID, actorID string, newRole domain.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	roles, err := lockMembers(ctx, tx, workspaceID)
	if err != nil {
		return err
	}

	currentRole, ok := roles[actorID]
	if !ok {
		return ErrMemberNotFound
	}

	// Demoting an admin requires another admin to remain.
	if currentRole == domain.RoleAdmin && newRole != domain.RoleAdmin && countAdmins(roles) <= 1 {
		return ErrLastAdmin
	}

	tag, err := tx.Exec(ctx,
		`UPDATE workspace_members SET role = $3, updated_at = now() WHERE workspace_id = $1 AND actor_id = $2`,
		workspaceID, actorID, newRole,
	)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return tx.Commit(ctx)
}

// RemoveMember deletes a membership, rejecting removal of the last admin
// under the same transactional lock as UpdateMemberRole.
func (r *WorkspaceRepository) RemoveMember(ctx context.Context, workspaceID, actorID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	roles, err := lockMembers(ctx, tx, workspaceID)
	if err != nil {
		return err
	}

	currentRole, ok := roles[actorID]
	if !ok {
		return ErrMemberNotFound
	}

	if currentRole == domain.RoleAdmin && countAdmins(roles) <= 1 {
		return ErrLastAdmin
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND actor_id = $2`,
		workspaceID, actorID,
	)
	if err != nil {
		return fmt.Errorf("delete workspace member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return tx.Commit(ctx)
}

// GetProject retrieves a project scoped to the workspace. Room joins use
// this to verify the project actually belongs to the caller's workspace.
func (r *WorkspaceRepository) GetProject(ctx context.Context, workspaceID, projectID string) (*domain.Project, error) {
	query := `
		SELECT id, workspace_id, name, description, created_at, updated_at
		FROM projects
		WHERE id = $1 AND workspace_id = $2
	`

	var p domain.Project
	var description pgtype.Text
	err := r.pool.QueryRow(ctx, query, projectID, workspaceID).Scan(
		&p.ID, &p.WorkspaceID, &p.Name, &description, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("query project: %w", err)
	}

	p.Description = toStrPtr(description)
	return &p, nil
}

// lockMembers reads every membership of the workspace with FOR UPDATE, so
// concurrent demote/remove operations on the same workspace serialize and
// the admin count cannot change under us before commit.
func lockMembers(ctx context.Context, tx pgx.Tx, workspaceID string) (map[string]domain.Role, error) {
	rows, err := tx.Query(ctx,
		`SELECT actor_id, role FROM workspace_members WHERE workspace_id = $1 FOR UPDATE`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("lock workspace members: %w", err)
	}
	defer rows.Close()

	roles := make(map[string]domain.Role)
	for rows.Next() {
		var actorID, roleName string
		if err := rows.Scan(&actorID, &roleName); err != nil {
			return nil, fmt.Errorf("scan locked member: %w", err)
		}
		roles[actorID] = domain.Role(roleName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked members: %w", err)
	}

	return roles, nil
}

// countAdmins counts admins in a locked membership snapshot.
func countAdmins(roles map[string]domain.Role) int {
	count := 0
	for _, role := range roles {
		if role == domain.RoleAdmin {
			count++
		}
	}
	return count
}
