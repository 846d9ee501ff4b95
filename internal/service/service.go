// Package service contains the business logic.
//
// It sits between the handler and repository layers.
// It receives validated data from the handler, performs
// business operations, and calls repository methods to interact
// with the data. Each service declares the narrow repository
// interfaces it consumes, so tests can substitute mocks.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/model"
)

// AuditRecorder writes audit log entries. Recording never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry *model.AuditLogEntry)
}

// OnboardingCompleter completes onboarding tasks the system observes.
type OnboardingCompleter interface {
	Complete(ctx context.Context, orgID int64, task model.OnboardingTaskName, userID string) error
}

// newAuditEntry fills the actor fields of an entry.
func newAuditEntry(orgID int64, actor model.Actor, event model.AuditLogEvent, target *int64, data map[string]any) *model.AuditLogEntry {
	entry := &model.AuditLogEntry{
		OrganizationID: orgID,
		ActorLabel:     actor.Label,
		Event:          event,
		TargetObject:   target,
		IPAddress:      actor.IPAddress,
		Data:           data,
	}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.ActorUserID = &userID
		if entry.ActorLabel == "" {
			entry.ActorLabel = userID
		}
	}
	if actor.APIKey != "" {
		key := actor.APIKey
		entry.ActorKey = &key
	}
	return entry
}

// enqueue submits a task built by one of the job.New*Task constructors.
// A task id collision means the work is already queued.
func enqueue(ctx context.Context, q job.Enqueuer, task *asynq.Task, buildErr error) error {
	if buildErr != nil {
		return buildErr
	}
	if _, err := q.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
