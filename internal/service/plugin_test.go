package service

import (
	"context"
	"net/http"
	"testing"

	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/sqs"
	"github.com/deppfellow/trackr/internal/model"
)

type mockPluginRepo struct {
	mock.Mock
}

func (m *mockPluginRepo) GetPlugin(ctx context.Context, projectID int64, plugin string) (*model.ProjectPlugin, error) {
	args := m.Called(ctx, projectID, plugin)
	p, _ := args.Get(0).(*model.ProjectPlugin)
	return p, args.Error(1)
}

func (m *mockPluginRepo) UpsertPlugin(ctx context.Context, p *model.ProjectPlugin) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPluginRepo) DisablePlugin(ctx context.Context, projectID int64, plugin string) error {
	return m.Called(ctx, projectID, plugin).Error(0)
}

type fakeSQS struct {
	bodies []string
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *awssqs.SendMessageInput, _ ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bodies = append(f.bodies, *in.MessageBody)
	return &awssqs.SendMessageOutput{}, nil
}

var pluginProject = &model.Project{ID: 3, OrganizationID: 1, Slug: "web"}

func sqsConfig() model.SQSConfig {
	return model.SQSConfig{
		QueueURL:  "https://sqs.us-east-1.amazonaws.com/123/events",
		Region:    "us-east-1",
		AccessKey: "AKIA",
		SecretKey: "secret",
	}
}

func storedSQS(enabled bool) *model.ProjectPlugin {
	return &model.ProjectPlugin{
		ProjectID: pluginProject.ID,
		Plugin:    model.PluginAmazonSQS,
		Enabled:   enabled,
		Config: map[string]any{
			"queue_url":  "https://sqs.us-east-1.amazonaws.com/123/events",
			"region":     "us-east-1",
			"access_key": "AKIA",
			"secret_key": "secret",
		},
	}
}

func newPluginService(repo *mockPluginRepo, q *recordingQueue, audit *recordingAudit, sender *fakeSQS) *PluginService {
	factory := func(context.Context, model.SQSConfig) (sqs.Sender, error) { return sender, nil }
	return NewPluginService(repo, q, audit, factory, metrics.New(), testLogger())
}

func TestConfigureSQS(t *testing.T) {
	ctx := context.Background()
	repo := &mockPluginRepo{}
	audit := &recordingAudit{}
	repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(nil, nil)
	repo.On("UpsertPlugin", ctx, mock.MatchedBy(func(p *model.ProjectPlugin) bool {
		return p.Enabled && p.Config["secret_key"] == "secret"
	})).Return(nil)

	got, err := newPluginService(repo, &recordingQueue{}, audit, nil).ConfigureSQS(ctx, testOrg, testWriter, pluginProject, sqsConfig())
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "********", got.Config.SecretKey)
	assert.Equal(t, []model.AuditLogEvent{model.AuditPluginEdit, model.AuditPluginEnable}, audit.events())
}

func TestConfigureSQS_KeepsStoredSecret(t *testing.T) {
	ctx := context.Background()
	repo := &mockPluginRepo{}
	audit := &recordingAudit{}
	repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(true), nil)
	repo.On("UpsertPlugin", ctx, mock.MatchedBy(func(p *model.ProjectPlugin) bool {
		return p.Config["secret_key"] == "secret" && p.Config["region"] == "eu-west-1"
	})).Return(nil)

	cfg := sqsConfig()
	cfg.SecretKey = ""
	cfg.Region = "eu-west-1"
	_, err := newPluginService(repo, &recordingQueue{}, audit, nil).ConfigureSQS(ctx, testOrg, testWriter, pluginProject, cfg)
	require.NoError(t, err)
	assert.Equal(t, []model.AuditLogEvent{model.AuditPluginEdit}, audit.events())
}

func TestConfigureSQS_Rejections(t *testing.T) {
	ctx := context.Background()

	repo := &mockPluginRepo{}
	_, err := newPluginService(repo, &recordingQueue{}, &recordingAudit{}, nil).ConfigureSQS(ctx, testOrg, testMember, pluginProject, sqsConfig())
	assert.True(t, errs.HasStatus(err, http.StatusForbidden))

	repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(nil, nil)
	cfg := sqsConfig()
	cfg.QueueURL = "http://insecure.test/q"
	_, err = newPluginService(repo, &recordingQueue{}, &recordingAudit{}, nil).ConfigureSQS(ctx, testOrg, testWriter, pluginProject, cfg)
	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
	repo.AssertNotCalled(t, "UpsertPlugin", mock.Anything, mock.Anything)
}

func TestForwardEvent(t *testing.T) {
	ctx := context.Background()
	ev := &model.Event{ID: uuid.New(), ProjectID: pluginProject.ID}

	repo := &mockPluginRepo{}
	q := &recordingQueue{}
	repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(false), nil).Once()
	repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(true), nil).Once()
	svc := newPluginService(repo, q, &recordingAudit{}, nil)

	require.NoError(t, svc.ForwardEvent(ctx, ev))
	assert.Empty(t, q.tasks)

	require.NoError(t, svc.ForwardEvent(ctx, ev))
	assert.Equal(t, []string{job.TaskSQSForward}, q.types())
}

func TestHandleForwardTask(t *testing.T) {
	ctx := context.Background()
	ev := model.Event{ID: uuid.New(), ProjectID: pluginProject.ID, Message: "boom"}
	task, err := job.NewSQSForwardTask(job.SQSForwardPayload{ProjectID: pluginProject.ID, Event: ev})
	require.NoError(t, err)

	t.Run("sends", func(t *testing.T) {
		repo := &mockPluginRepo{}
		sender := &fakeSQS{}
		repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(true), nil)

		require.NoError(t, newPluginService(repo, &recordingQueue{}, &recordingAudit{}, sender).HandleForwardTask(ctx, task))
		require.Len(t, sender.bodies, 1)
		assert.Contains(t, sender.bodies[0], `"message":"boom"`)
	})

	t.Run("disabled since queued", func(t *testing.T) {
		repo := &mockPluginRepo{}
		sender := &fakeSQS{}
		repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(false), nil)

		require.NoError(t, newPluginService(repo, &recordingQueue{}, &recordingAudit{}, sender).HandleForwardTask(ctx, task))
		assert.Empty(t, sender.bodies)
	})

	t.Run("access denied is permanent", func(t *testing.T) {
		repo := &mockPluginRepo{}
		sender := &fakeSQS{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
		repo.On("GetPlugin", ctx, pluginProject.ID, model.PluginAmazonSQS).Return(storedSQS(true), nil)

		err := newPluginService(repo, &recordingQueue{}, &recordingAudit{}, sender).HandleForwardTask(ctx, task)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}
