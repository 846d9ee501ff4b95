package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

const groupColumns = `g.id, g.project_id, p.slug, g.short_id, g.title, g.culprit, g.level,
	g.status, g.times_seen, g.first_seen, g.last_seen`

func scanGroup(row pgx.Row) (*model.Group, error) {
	var g model.Group
	err := row.Scan(&g.ID, &g.ProjectID, &g.ProjectSlug, &g.ShortID, &g.Title, &g.Culprit, &g.Level,
		&g.Status, &g.TimesSeen, &g.FirstSeen, &g.LastSeen)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func collectGroups(rows pgx.Rows) ([]model.Group, error) {
	defer rows.Close()
	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// GetGroup loads a group that belongs to the organization.
func (r *GroupRepository) GetGroup(ctx context.Context, orgID, id int64) (*model.Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx, `
		SELECT `+groupColumns+`
		FROM groups g JOIN projects p ON p.id = g.project_id
		WHERE g.id = $1 AND p.organization_id = $2`, id, orgID))
	if err != nil {
		return nil, sqlerr.NotFound("groups", err)
	}
	return g, nil
}

// GetGroups loads every listed group that belongs to the organization.
// Missing ids are silently absent from the result.
func (r *GroupRepository) GetGroups(ctx context.Context, orgID int64, ids []int64) ([]model.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+groupColumns+`
		FROM groups g JOIN projects p ON p.id = g.project_id
		WHERE g.id = ANY($1) AND p.organization_id = $2
		ORDER BY g.id`, ids, orgID)
	if err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return collectGroups(rows)
}

const redirectColumns = `id, organization_id, group_id, previous_group_id, previous_short_id,
	previous_project_slug, date_added`

func scanRedirect(row pgx.Row) (*model.GroupRedirect, error) {
	var gr model.GroupRedirect
	err := row.Scan(&gr.ID, &gr.OrganizationID, &gr.GroupID, &gr.PreviousGroupID, &gr.PreviousShortID,
		&gr.PreviousProjectSlug, &gr.DateAdded)
	if err != nil {
		return nil, err
	}
	return &gr, nil
}

// GetRedirect finds where a merged-away group id now points.
func (r *GroupRepository) GetRedirect(ctx context.Context, orgID, previousGroupID int64) (*model.GroupRedirect, error) {
	gr, err := scanRedirect(r.pool.QueryRow(ctx,
		`SELECT `+redirectColumns+` FROM group_redirects
		WHERE previous_group_id = $1 AND organization_id = $2`, previousGroupID, orgID))
	if err != nil {
		return nil, sqlerr.NotFound("groups", err)
	}
	return gr, nil
}

// ListRedirectsTouching returns every redirect whose source or target is one
// of ids.
func (r *GroupRepository) ListRedirectsTouching(ctx context.Context, ids []int64) ([]model.GroupRedirect, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+redirectColumns+` FROM group_redirects
		WHERE group_id = ANY($1) OR previous_group_id = ANY($1)
		ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list group redirects: %w", err)
	}
	defer rows.Close()

	var redirects []model.GroupRedirect
	for rows.Next() {
		gr, err := scanRedirect(rows)
		if err != nil {
			return nil, err
		}
		redirects = append(redirects, *gr)
	}
	return redirects, rows.Err()
}

// ErrMergeConflict means a group changed between the caller's read and the
// merge: it vanished, moved project or is already being merged.
var ErrMergeConflict = errors.New("groups changed before the merge started")

type mergeCandidate struct {
	ID        int64
	ProjectID int64
	Status    model.GroupStatus
}

// checkMergeable validates the locked rows of a merge: every wanted group
// is present, all share one project and none is pending a merge.
func checkMergeable(locked []mergeCandidate, want int) error {
	if len(locked) != want {
		return fmt.Errorf("%w: %d of %d groups exist", ErrMergeConflict, len(locked), want)
	}
	for _, g := range locked {
		if g.ProjectID != locked[0].ProjectID {
			return fmt.Errorf("%w: group %d is in another project", ErrMergeConflict, g.ID)
		}
		if g.Status == model.GroupStatusPendingMerge {
			return fmt.Errorf("%w: group %d is already being merged", ErrMergeConflict, g.ID)
		}
	}
	return nil
}

// MarkMerging flags children as pending_merge, points a redirect from every
// child to parent and re-targets redirects that already pointed at a child.
// The groups are locked and re-checked first; a concurrent merge of any of
// them yields ErrMergeConflict.
func (r *GroupRepository) MarkMerging(ctx context.Context, orgID int64, parent *model.Group, children []model.Group) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		childIDs := make([]int64, 0, len(children))
		for _, child := range children {
			childIDs = append(childIDs, child.ID)
		}

		rows, err := tx.Query(ctx, `
			SELECT g.id, g.project_id, g.status
			FROM groups g JOIN projects p ON p.id = g.project_id
			WHERE g.id = ANY($1) AND p.organization_id = $2
			ORDER BY g.id
			FOR UPDATE OF g`, append([]int64{parent.ID}, childIDs...), orgID)
		if err != nil {
			return fmt.Errorf("lock merging groups: %w", err)
		}
		locked, err := pgx.CollectRows(rows, pgx.RowToStructByPos[mergeCandidate])
		if err != nil {
			return fmt.Errorf("lock merging groups: %w", err)
		}
		if err := checkMergeable(locked, len(children)+1); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE groups SET status = $2 WHERE id = ANY($1)`,
			childIDs, model.GroupStatusPendingMerge); err != nil {
			return fmt.Errorf("mark groups pending merge: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE group_redirects SET group_id = $2 WHERE group_id = ANY($1)`,
			childIDs, parent.ID); err != nil {
			return fmt.Errorf("retarget group redirects: %w", err)
		}

		for _, child := range children {
			if _, err := tx.Exec(ctx, `
				INSERT INTO group_redirects
					(organization_id, group_id, previous_group_id, previous_short_id, previous_project_slug)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (previous_group_id) DO UPDATE SET group_id = EXCLUDED.group_id`,
				orgID, parent.ID, child.ID, child.ShortID, child.ProjectSlug); err != nil {
				return fmt.Errorf("insert group redirect %d: %w", child.ID, err)
			}
		}
		return nil
	})
}

// CompleteMerge folds child into parent: events, hashes and subscriptions
// move, counters and seen bounds widen, and the child row is deleted. A
// child that no longer exists is treated as already merged.
func (r *GroupRepository) CompleteMerge(ctx context.Context, parentID, childID int64) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM groups WHERE id = $1 FOR UPDATE`, childID).Scan(&locked)
		if sqlerr.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock merged group: %w", err)
		}

		statements := []struct {
			what string
			sql  string
			args []any
		}{
			{"move events", `UPDATE events SET group_id = $1 WHERE group_id = $2`, []any{parentID, childID}},
			{"move hashes", `UPDATE group_hashes SET group_id = $1 WHERE group_id = $2`, []any{parentID, childID}},
			{"copy subscriptions", `
				INSERT INTO group_subscriptions (group_id, user_id, date_added)
				SELECT $1, user_id, date_added FROM group_subscriptions WHERE group_id = $2
				ON CONFLICT DO NOTHING`, []any{parentID, childID}},
			{"widen parent", `
				UPDATE groups p
				SET times_seen = p.times_seen + c.times_seen,
					first_seen = LEAST(p.first_seen, c.first_seen),
					last_seen  = GREATEST(p.last_seen, c.last_seen)
				FROM groups c
				WHERE p.id = $1 AND c.id = $2`, []any{parentID, childID}},
			{"delete child", `DELETE FROM groups WHERE id = $1`, []any{childID}},
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt.sql, stmt.args...); err != nil {
				return fmt.Errorf("merge group %d into %d: %s: %w", childID, parentID, stmt.what, err)
			}
		}
		return nil
	})
}

// UpdateStatus sets status on the listed groups of the organization and
// returns the groups that changed.
func (r *GroupRepository) UpdateStatus(ctx context.Context, orgID int64, ids []int64, status model.GroupStatus) ([]model.Group, error) {
	rows, err := r.pool.Query(ctx, `
		WITH updated AS (
			UPDATE groups g SET status = $3
			FROM projects p
			WHERE p.id = g.project_id AND g.id = ANY($1) AND p.organization_id = $2
				AND g.status <> 'pending_merge'
			RETURNING g.*
		)
		SELECT `+groupColumns+`
		FROM updated g JOIN projects p ON p.id = g.project_id
		ORDER BY g.id`, ids, orgID, status)
	if err != nil {
		return nil, fmt.Errorf("update group status: %w", err)
	}
	return collectGroups(rows)
}

// ListSubscribers returns the users participating in a group.
func (r *GroupRepository) ListSubscribers(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_subscriptions WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group subscribers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
