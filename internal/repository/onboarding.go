package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deppfellow/trackr/internal/model"
)

type OnboardingRepository struct {
	pool *pgxpool.Pool
}

func NewOnboardingRepository(pool *pgxpool.Pool) *OnboardingRepository {
	return &OnboardingRepository{pool: pool}
}

func (r *OnboardingRepository) List(ctx context.Context, orgID int64) ([]model.OnboardingTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, task, status, user_id, completion_seen, date_completed, data
		FROM onboarding_tasks
		WHERE organization_id = $1
		ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list onboarding tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.OnboardingTask
	for rows.Next() {
		var t model.OnboardingTask
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Task, &t.Status, &t.UserID,
			&t.CompletionSeen, &t.DateCompleted, &t.Data); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Upsert writes the task's status over any earlier one, except that a
// complete task stays complete. It reports whether anything changed.
func (r *OnboardingRepository) Upsert(ctx context.Context, task *model.OnboardingTask) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO onboarding_tasks (organization_id, task, status, user_id, date_completed, data)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (organization_id, task) DO UPDATE
		SET status = EXCLUDED.status,
			user_id = EXCLUDED.user_id,
			date_completed = EXCLUDED.date_completed,
			data = EXCLUDED.data
		WHERE onboarding_tasks.status <> 'complete'`,
		task.OrganizationID, task.Task, task.Status, task.UserID, jsonMap(task.Data))
	if err != nil {
		return false, fmt.Errorf("upsert onboarding task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete marks a task complete unless it already is. It reports whether
// anything changed.
func (r *OnboardingRepository) Complete(ctx context.Context, task *model.OnboardingTask) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO onboarding_tasks (organization_id, task, status, user_id, date_completed, data)
		VALUES ($1, $2, 'complete', $3, now(), $4)
		ON CONFLICT (organization_id, task) DO UPDATE
		SET status = 'complete', user_id = EXCLUDED.user_id, date_completed = EXCLUDED.date_completed
		WHERE onboarding_tasks.status <> 'complete'`,
		task.OrganizationID, task.Task, task.UserID, jsonMap(task.Data))
	if err != nil {
		return false, fmt.Errorf("complete onboarding task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompletionSeen records when the user saw the task's completion.
func (r *OnboardingRepository) MarkCompletionSeen(ctx context.Context, orgID int64, task model.OnboardingTaskName, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE onboarding_tasks SET completion_seen = $3
		WHERE organization_id = $1 AND task = $2 AND completion_seen IS NULL`,
		orgID, task, at)
	if err != nil {
		return fmt.Errorf("mark onboarding completion seen: %w", err)
	}
	return nil
}

// CountDone counts the listed tasks that are complete or skipped.
func (r *OnboardingRepository) CountDone(ctx context.Context, orgID int64, tasks []model.OnboardingTaskName) (int, error) {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = string(t)
	}

	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM onboarding_tasks
		WHERE organization_id = $1 AND task = ANY($2) AND status IN ('complete', 'skipped')`,
		orgID, names).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count onboarding tasks: %w", err)
	}
	return n, nil
}
