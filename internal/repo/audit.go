package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tandem-api/internal/audit"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo is the durable audit recorder. Rows are append-only: the
// application never updates or deletes them.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates a new AuditRepo
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// AuditEntry is one persisted audit row, as returned by List.
type AuditEntry struct {
	ID           string                 `json:"id"`
	WorkspaceID  string                 `json:"workspaceId"`
	ActorID      *string                `json:"actorId,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	Outcome      string                 `json:"outcome"`
	Changes      map[string]interface{} `json:"changes,omitempty"`
	IPAddress    string                 `json:"ipAddress"`
	UserAgent    string                 `json:"userAgent"`
	OccurredAt   time.Time              `json:"occurredAt"`
}

// Record implements audit.Recorder with an append-only insert.
func (r *AuditRepo) Record(ctx context.Context, event audit.Event) error {
	var changesJSON []byte
	var err error

	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("marshal audit changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (
			workspace_id, actor_id, action, resource_type, resource_id,
			outcome, changes, ip_address, user_agent, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		event.WorkspaceID, event.ActorID, event.Action, event.ResourceType, event.ResourceID,
		string(event.Outcome), changesJSON, event.IPAddress, event.UserAgent, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// List returns audit entries for a workspace, newest first. Read-only and
// admin-gated at the route level.
func (r *AuditRepo) List(ctx context.Context, workspaceID string, limit int, cursor *time.Time) ([]AuditEntry, error) {
	query := `
		SELECT id, workspace_id, actor_id, action, resource_type, resource_id,
		       outcome, changes, ip_address, user_agent, occurred_at
		FROM audit_log
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	argIdx := 2

	if cursor != nil {
		query += fmt.Sprintf(" AND occurred_at < $%d", argIdx)
		args = append(args, *cursor)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0, limit)
	for rows.Next() {
		var e AuditEntry
		var actorID, resourceID pgtype.Text
		var changesJSON []byte

		err := rows.Scan(
			&e.ID, &e.WorkspaceID, &actorID, &e.Action, &e.ResourceType, &resourceID,
			&e.Outcome, &changesJSON, &e.IPAddress, &e.UserAgent, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		e.ActorID = toStrPtr(actorID)
		e.ResourceID = toStrPtr(resourceID)

		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &e.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal audit changes: %w", err)
			}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}
