package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// SavedEvent describes what storing an event changed.
type SavedEvent struct {
	Group *model.Group
	// IsNew is set when the event opened a new group.
	IsNew bool
	// FirstEvent is set when this was the project's first event ever.
	FirstEvent bool
}

// SaveEvent stores ev under the group owning hash, creating the group when
// the hash is unseen. ev.GroupID is filled in.
func (r *EventRepository) SaveEvent(ctx context.Context, ev *model.Event, hash string) (*SavedEvent, error) {
	saved := &SavedEvent{}

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		groupID, created, err := claimGroup(ctx, tx, ev, hash)
		if err != nil {
			return err
		}
		saved.IsNew = created
		if !created {
			if _, err := tx.Exec(ctx, `
				UPDATE groups SET times_seen = times_seen + 1, last_seen = GREATEST(last_seen, $2)
				WHERE id = $1`, groupID, ev.Received); err != nil {
				return fmt.Errorf("bump group counters: %w", err)
			}
		}
		ev.GroupID = groupID

		if _, err := tx.Exec(ctx, `
			INSERT INTO events (id, project_id, group_id, message, level, platform, culprit,
				exception_type, exception_value, fingerprint, tags, release, environment, received)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			ev.ID, ev.ProjectID, ev.GroupID, ev.Message, ev.Level, ev.Platform, ev.Culprit,
			ev.ExceptionType, ev.ExceptionValue, ev.Fingerprint, ev.Tags, ev.Release, ev.Environment,
			ev.Received); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE projects SET first_event = $2 WHERE id = $1 AND first_event IS NULL`,
			ev.ProjectID, ev.Received)
		if err != nil {
			return fmt.Errorf("set project first event: %w", err)
		}
		saved.FirstEvent = tag.RowsAffected() == 1

		saved.Group, err = scanGroup(tx.QueryRow(ctx, `
			SELECT `+groupColumns+`
			FROM groups g JOIN projects p ON p.id = g.project_id
			WHERE g.id = $1`, groupID))
		if err != nil {
			return fmt.Errorf("reload group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// claimGroup finds the group owning hash or opens one. Concurrent ingests
// of a new hash race on the group_hashes unique key; the loser drops its
// provisional group and joins the winner's.
func claimGroup(ctx context.Context, q querier, ev *model.Event, hash string) (int64, bool, error) {
	groupID, err := groupForHash(ctx, q, ev.ProjectID, hash)
	if err == nil {
		return groupID, false, nil
	}
	if !sqlerr.IsNoRows(err) {
		return 0, false, fmt.Errorf("look up group hash: %w", err)
	}

	var shortID int64
	if err := q.QueryRow(ctx, `
		UPDATE projects SET next_short_id = next_short_id + 1
		WHERE id = $1
		RETURNING next_short_id - 1`, ev.ProjectID).Scan(&shortID); err != nil {
		return 0, false, sqlerr.NotFound("projects", err)
	}

	if err := q.QueryRow(ctx, `
		INSERT INTO groups (project_id, short_id, title, culprit, level, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`,
		ev.ProjectID, shortID, ev.Title(), ev.Culprit, ev.Level, ev.Received).Scan(&groupID); err != nil {
		return 0, false, fmt.Errorf("insert group: %w", err)
	}

	var owner int64
	err = q.QueryRow(ctx, `
		INSERT INTO group_hashes (project_id, hash, group_id) VALUES ($1, $2, $3)
		ON CONFLICT (project_id, hash) DO NOTHING
		RETURNING group_id`,
		ev.ProjectID, hash, groupID).Scan(&owner)
	switch {
	case err == nil:
		return owner, true, nil
	case !sqlerr.IsNoRows(err):
		return 0, false, fmt.Errorf("insert group hash: %w", err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
		return 0, false, fmt.Errorf("drop provisional group: %w", err)
	}
	owner, err = groupForHash(ctx, q, ev.ProjectID, hash)
	if err != nil {
		return 0, false, fmt.Errorf("look up claimed group hash: %w", err)
	}
	return owner, false, nil
}

func groupForHash(ctx context.Context, q querier, projectID int64, hash string) (int64, error) {
	var groupID int64
	err := q.QueryRow(ctx,
		`SELECT group_id FROM group_hashes WHERE project_id = $1 AND hash = $2`,
		projectID, hash).Scan(&groupID)
	return groupID, err
}

const eventColumns = `id, project_id, group_id, message, level, platform, culprit,
	exception_type, exception_value, fingerprint, tags, release, environment, received`

// ListForGroups returns the newest events of any of the groups.
func (r *EventRepository) ListForGroups(ctx context.Context, groupIDs []int64, limit int) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE group_id = ANY($1)
		ORDER BY received DESC, id
		LIMIT $2`, groupIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.GroupID, &e.Message, &e.Level, &e.Platform, &e.Culprit,
			&e.ExceptionType, &e.ExceptionValue, &e.Fingerprint, &e.Tags, &e.Release, &e.Environment,
			&e.Received); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
