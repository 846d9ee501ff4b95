package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
)

type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{pool: pool}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_log_entries (organization_id, actor_user_id, actor_label, actor_key,
			target_object, target_user_id, event, ip_address, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, datetime`,
		entry.OrganizationID, entry.ActorUserID, entry.ActorLabel, entry.ActorKey,
		entry.TargetObject, entry.TargetUserID, int(entry.Event), entry.IPAddress, jsonMap(entry.Data),
	).Scan(&entry.ID, &entry.DateTime)
	if err != nil {
		return fmt.Errorf("insert audit log entry: %w", err)
	}
	return nil
}

// List returns up to filter.Limit+1 entries, newest first, so callers can
// tell whether another page exists. Cursor is the id of the last row seen.
func (r *AuditLogRepository) List(ctx context.Context, orgID int64, filter model.AuditLogFilter) ([]model.AuditLogEntry, error) {
	where := []string{"organization_id = $1"}
	args := []any{orgID}

	if filter.Event != nil {
		args = append(args, int(*filter.Event))
		where = append(where, fmt.Sprintf("event = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_user_id = $%d", len(args)))
	}
	if filter.Cursor > 0 {
		args = append(args, filter.Cursor)
		where = append(where, fmt.Sprintf("id < $%d", len(args)))
	}
	args = append(args, filter.Limit+1)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, organization_id, actor_user_id, actor_label, actor_key, target_object,
			target_user_id, event, ip_address, data, datetime
		FROM audit_log_entries
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d`, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var (
			e     model.AuditLogEntry
			event int
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorUserID, &e.ActorLabel, &e.ActorKey,
			&e.TargetObject, &e.TargetUserID, &event, &e.IPAddress, &e.Data, &e.DateTime); err != nil {
			return nil, err
		}
		e.Event = model.AuditLogEvent(event)
		e.EventName = e.Event.Name()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
