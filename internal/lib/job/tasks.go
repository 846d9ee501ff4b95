package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/deppfellow/trackr/internal/model"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Task type names stored in Redis. Asynq routes on these strings.
const (
	TaskGroupMerge          = "group:merge"
	TaskNotificationDeliver = "notification:deliver"
	TaskSQSForward          = "sqs:forward"
	TaskFetchCommits        = "repository:fetch_commits"
	TaskMSTeamsReply        = "msteams:reply"
	TaskEmailSend           = "email:send"
)

// Enqueuer is the part of *asynq.Client producers depend on.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GroupMergePayload folds one child group into its parent.
type GroupMergePayload struct {
	OrganizationID int64 `json:"organization_id"`
	ParentID       int64 `json:"parent_id"`
	ChildID        int64 `json:"child_id"`
}

// NotificationDeliverPayload delivers one notification to one recipient on
// one provider, or one OpsGenie alert when Provider is "opsgenie".
type NotificationDeliverPayload struct {
	Provider       string          `json:"provider"`
	Type           string          `json:"type"`
	OrganizationID int64           `json:"organization_id"`
	ProjectID      int64           `json:"project_id"`
	Group          model.Group     `json:"group"`
	URL            string          `json:"url"`
	Recipient      model.Recipient `json:"recipient"`
	// Opsgenie fields.
	IntegrationID int64  `json:"integration_id,omitempty"`
	TargetID      string `json:"target_id,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Close         bool   `json:"close,omitempty"`
}

// SQSForwardPayload forwards one event to the project's queue.
type SQSForwardPayload struct {
	ProjectID int64       `json:"project_id"`
	Event     model.Event `json:"event"`
}

// FetchCommitsPayload pulls the commits between two revisions from the
// repository's provider.
type FetchCommitsPayload struct {
	OrganizationID int64  `json:"organization_id"`
	RepositoryID   int64  `json:"repository_id"`
	StartSHA       string `json:"start_sha"`
	EndSHA         string `json:"end_sha"`
	Version        string `json:"version,omitempty"`
}

// MSTeamsReplyPayload posts one activity into a Teams conversation.
type MSTeamsReplyPayload struct {
	ServiceURL     string          `json:"service_url"`
	ConversationID string          `json:"conversation_id"`
	Activity       json.RawMessage `json:"activity"`
}

// EmailSendPayload sends one templated email.
type EmailSendPayload struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

func newTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data, opts...), nil
}

// NewGroupMergeTask constructs the task that completes a merge. The task id
// makes re-enqueueing the same child a no-op.
func NewGroupMergeTask(p GroupMergePayload) (*asynq.Task, error) {
	return newTask(TaskGroupMerge, p,
		asynq.MaxRetry(3),
		asynq.Queue(QueueCritical),
		asynq.Timeout(2*time.Minute),
		asynq.TaskID(fmt.Sprintf("group-merge-%d", p.ChildID)),
	)
}

func NewNotificationDeliverTask(p NotificationDeliverPayload) (*asynq.Task, error) {
	return newTask(TaskNotificationDeliver, p,
		asynq.MaxRetry(5),
		asynq.Queue(QueueDefault),
		asynq.Timeout(30*time.Second),
	)
}

func NewSQSForwardTask(p SQSForwardPayload) (*asynq.Task, error) {
	return newTask(TaskSQSForward, p,
		asynq.MaxRetry(5),
		asynq.Queue(QueueLow),
		asynq.Timeout(30*time.Second),
		asynq.TaskID("sqs-"+p.Event.ID.String()),
	)
}

func NewFetchCommitsTask(p FetchCommitsPayload) (*asynq.Task, error) {
	return newTask(TaskFetchCommits, p,
		asynq.MaxRetry(3),
		asynq.Queue(QueueDefault),
		asynq.Timeout(2*time.Minute),
	)
}

func NewMSTeamsReplyTask(p MSTeamsReplyPayload) (*asynq.Task, error) {
	return newTask(TaskMSTeamsReply, p,
		asynq.MaxRetry(5),
		asynq.Queue(QueueCritical),
		asynq.Timeout(30*time.Second),
		asynq.TaskID("msteams-"+uuid.NewString()),
	)
}

func NewEmailSendTask(p EmailSendPayload) (*asynq.Task, error) {
	return newTask(TaskEmailSend, p,
		asynq.MaxRetry(3),
		asynq.Queue(QueueDefault),
		asynq.Timeout(30*time.Second),
	)
}

// Decode unmarshals a task payload.
func Decode[T any](t *asynq.Task) (T, error) {
	var p T
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("%w: unmarshal %s payload: %v", asynq.SkipRetry, t.Type(), err)
	}
	return p, nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
}
