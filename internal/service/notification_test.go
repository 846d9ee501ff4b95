package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/email"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/opsgenie"
	"github.com/deppfellow/trackr/internal/model"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) ListOptions(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingOption, error) {
	args := m.Called(ctx, userIDs, typ)
	o, _ := args.Get(0).([]model.NotificationSettingOption)
	return o, args.Error(1)
}

func (m *mockNotificationRepo) ListProviders(ctx context.Context, userIDs []string, typ *model.NotificationType) ([]model.NotificationSettingProvider, error) {
	args := m.Called(ctx, userIDs, typ)
	p, _ := args.Get(0).([]model.NotificationSettingProvider)
	return p, args.Error(1)
}

func (m *mockNotificationRepo) UpsertOptions(ctx context.Context, options []model.NotificationSettingOption) error {
	return m.Called(ctx, options).Error(0)
}

func (m *mockNotificationRepo) UpsertProviders(ctx context.Context, providers []model.NotificationSettingProvider) error {
	return m.Called(ctx, providers).Error(0)
}

func (m *mockNotificationRepo) DeleteOption(ctx context.Context, userID string, id int64) (bool, error) {
	args := m.Called(ctx, userID, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockNotificationRepo) DeleteProvider(ctx context.Context, userID string, id int64) (bool, error) {
	args := m.Called(ctx, userID, id)
	return args.Bool(0), args.Error(1)
}

type staticSubscribers []string

func (s staticSubscribers) ListSubscribers(context.Context, int64) ([]string, error) { return s, nil }

type staticCommitters []string

func (s staticCommitters) ListReleaseCommitters(context.Context, int64, string) ([]string, error) {
	return s, nil
}

type notificationFixture struct {
	settings     *mockNotificationRepo
	directory    *mockTenancyRepo
	integrations *mockIntegrationRepo
	queue        *recordingQueue
	email        *mockEmail
	teams        *mockSender
	alerts       *mockAlerts
	svc          *NotificationService
}

func newNotificationFixture(participants, committers []string) *notificationFixture {
	f := &notificationFixture{
		settings:     &mockNotificationRepo{},
		directory:    &mockTenancyRepo{},
		integrations: &mockIntegrationRepo{},
		queue:        &recordingQueue{},
		email:        &mockEmail{},
		teams:        &mockSender{},
		alerts:       &mockAlerts{},
	}
	f.svc = NewNotificationService(NotificationDeps{
		Settings:     f.settings,
		Directory:    f.directory,
		Integrations: f.integrations,
		Subscribers:  staticSubscribers(participants),
		Committers:   staticCommitters(committers),
		Queue:        f.queue,
		Email:        f.email,
		Teams:        f.teams,
		Opsgenie:     f.alerts,
	}, "https://trackr.test", metrics.New(), testLogger())
	return f
}

var (
	notifyProject = &model.Project{ID: 3, OrganizationID: testOrg.ID, Slug: "web"}
	notifyGroup   = &model.Group{ID: 11, ProjectID: 3, Title: "TypeError", Level: "error"}
)

func TestResolveOption_ScopePrecedence(t *testing.T) {
	options := []model.NotificationSettingOption{
		{ScopeType: model.ScopeUser, ScopeIdentifier: "u1", UserID: "u1", Type: model.NotifyWorkflow, Value: model.SettingAlways},
		{ScopeType: model.ScopeOrganization, ScopeIdentifier: "1", UserID: "u1", Type: model.NotifyWorkflow, Value: model.SettingNever},
		{ScopeType: model.ScopeProject, ScopeIdentifier: "3", UserID: "u1", Type: model.NotifyWorkflow, Value: model.SettingSubscribeOnly},
		{ScopeType: model.ScopeProject, ScopeIdentifier: "9", UserID: "u1", Type: model.NotifyWorkflow, Value: model.SettingAlways},
	}

	assert.Equal(t, model.SettingSubscribeOnly, ResolveOption(options, "u1", model.NotifyWorkflow, 1, 3))
	assert.Equal(t, model.SettingNever, ResolveOption(options, "u1", model.NotifyWorkflow, 1, 4))
	assert.Equal(t, model.SettingAlways, ResolveOption(options, "u1", model.NotifyWorkflow, 2, 4))
	assert.Equal(t, model.SettingSubscribeOnly, ResolveOption(options, "u2", model.NotifyWorkflow, 1, 3))
	assert.Equal(t, model.SettingCommittedOnly, ResolveOption(nil, "u1", model.NotifyDeploy, 1, 3))
	assert.Equal(t, model.SettingAlways, ResolveOption(nil, "u1", model.NotifyAlerts, 1, 3))
}

func TestResolveProvider_Defaults(t *testing.T) {
	assert.Equal(t, model.SettingAlways, ResolveProvider(nil, "u1", model.ProviderEmail, model.NotifyAlerts, 1, 3))
	assert.Equal(t, model.SettingNever, ResolveProvider(nil, "u1", model.ProviderMSTeams, model.NotifyAlerts, 1, 3))

	providers := []model.NotificationSettingProvider{
		{ScopeType: model.ScopeUser, ScopeIdentifier: "u1", UserID: "u1", Provider: model.ProviderMSTeams, Type: model.NotifyAlerts, Value: model.SettingAlways},
	}
	assert.Equal(t, model.SettingAlways, ResolveProvider(providers, "u1", model.ProviderMSTeams, model.NotifyAlerts, 1, 3))
	assert.Equal(t, model.SettingNever, ResolveProvider(providers, "u1", model.ProviderMSTeams, model.NotifyWorkflow, 1, 3))
}

func TestRecipients_AppliesOptions(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture([]string{"sub"}, nil)

	members := []model.Member{
		{UserID: "sub", Email: "sub@acme.test"},
		{UserID: "other", Email: "other@acme.test"},
		{UserID: "always", Email: "always@acme.test"},
		{UserID: "muted", Email: "muted@acme.test"},
	}
	f.directory.On("ListProjectMembers", ctx, notifyProject.ID).Return(members, nil)
	f.settings.On("ListOptions", ctx, mock.Anything, mock.Anything).Return([]model.NotificationSettingOption{
		{ScopeType: model.ScopeUser, ScopeIdentifier: "always", UserID: "always", Type: model.NotifyWorkflow, Value: model.SettingAlways},
		{ScopeType: model.ScopeProject, ScopeIdentifier: "3", UserID: "muted", Type: model.NotifyWorkflow, Value: model.SettingNever},
	}, nil)
	f.settings.On("ListProviders", ctx, mock.Anything, mock.Anything).Return([]model.NotificationSettingProvider{
		{ScopeType: model.ScopeUser, ScopeIdentifier: "always", UserID: "always", Provider: model.ProviderMSTeams, Type: model.NotifyWorkflow, Value: model.SettingAlways},
	}, nil)
	f.integrations.On("ListIdentitiesForUsers", ctx, string(model.ProviderSlack), mock.Anything).Return(nil, nil)
	f.integrations.On("ListIdentitiesForUsers", ctx, string(model.ProviderMSTeams), []string{"always"}).Return([]model.Identity{
		{UserID: "always", ExternalID: "teams-always", IdpExternalID: "tenant-1"},
	}, nil)

	got, err := f.svc.Recipients(ctx, &model.Notification{
		Type:         model.NotifyWorkflow,
		Organization: testOrg,
		Project:      notifyProject,
		Group:        notifyGroup,
	})
	require.NoError(t, err)

	var emails []string
	for _, r := range got[model.ProviderEmail] {
		emails = append(emails, r.UserID)
	}
	assert.ElementsMatch(t, []string{"sub", "always"}, emails)
	require.Len(t, got[model.ProviderMSTeams], 1)
	assert.Equal(t, "teams-always", got[model.ProviderMSTeams][0].ExternalID)
	assert.Empty(t, got[model.ProviderSlack])
}

func TestRecipients_CommittedOnly(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	f.directory.On("ListProjectMembers", ctx, notifyProject.ID).Return([]model.Member{
		{UserID: "author", Email: "author@acme.test"},
		{UserID: "bystander", Email: "bystander@acme.test"},
	}, nil)
	f.settings.On("ListOptions", ctx, mock.Anything, mock.Anything).Return(nil, nil)
	f.settings.On("ListProviders", ctx, mock.Anything, mock.Anything).Return(nil, nil)
	f.integrations.On("ListIdentitiesForUsers", ctx, mock.Anything, mock.Anything).Return(nil, nil)

	got, err := f.svc.Recipients(ctx, &model.Notification{
		Type:         model.NotifyDeploy,
		Organization: testOrg,
		Project:      notifyProject,
		Group:        notifyGroup,
		Committers:   []string{"author"},
		Release:      "web@1.0",
	})
	require.NoError(t, err)
	require.Len(t, got[model.ProviderEmail], 1)
	assert.Equal(t, "author", got[model.ProviderEmail][0].UserID)
}

func TestNotify_QueuesDeliveriesAndAlerts(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	f.directory.On("GetProjectByID", ctx, notifyGroup.ProjectID).Return(notifyProject, nil)
	f.directory.On("GetOrganization", ctx, testOrg.ID).Return(testOrg, nil)
	f.directory.On("ListProjectMembers", ctx, notifyProject.ID).Return([]model.Member{{UserID: "u1", Email: "u1@acme.test"}}, nil)
	f.settings.On("ListOptions", ctx, mock.Anything, mock.Anything).Return(nil, nil)
	f.settings.On("ListProviders", ctx, mock.Anything, mock.Anything).Return(nil, nil)
	f.integrations.On("ListIdentitiesForUsers", ctx, mock.Anything, mock.Anything).Return(nil, nil)
	f.integrations.On("ListAlertActions", ctx, notifyProject.ID, model.IntegrationOpsgenie).Return([]model.AlertAction{
		{IntegrationID: 6, TargetID: "team-a", Priority: "P1"},
	}, nil)

	require.NoError(t, f.svc.Notify(ctx, &model.Notification{Type: model.NotifyAlerts, Group: notifyGroup}))
	assert.ElementsMatch(t, []string{job.TaskEmailSend, job.TaskNotificationDeliver}, f.queue.types())

	for _, task := range f.queue.tasks {
		switch task.Type() {
		case job.TaskEmailSend:
			p := decodeTask[job.EmailSendPayload](task)
			assert.Equal(t, "u1@acme.test", p.To)
			assert.Equal(t, string(email.TemplateIssueAlert), p.Template)
			assert.Equal(t, "https://trackr.test/organizations/acme/issues/11/", p.Data["URL"])
		case job.TaskNotificationDeliver:
			p := decodeTask[job.NotificationDeliverPayload](task)
			assert.Equal(t, model.IntegrationOpsgenie, p.Provider)
			assert.Equal(t, "team-a", p.TargetID)
			assert.False(t, p.Close)
		}
	}
}

func TestCloseAlerts_QueuesClose(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	f.integrations.On("ListAlertActions", ctx, notifyGroup.ProjectID, model.IntegrationOpsgenie).Return([]model.AlertAction{
		{IntegrationID: 6, TargetID: "team-a"},
	}, nil)

	require.NoError(t, f.svc.CloseAlerts(ctx, testOrg, notifyGroup))
	require.Len(t, f.queue.tasks, 1)
	assert.True(t, decodeTask[job.NotificationDeliverPayload](f.queue.tasks[0]).Close)
}

func opsgenieInstall() *model.OrganizationIntegration {
	return &model.OrganizationIntegration{
		IntegrationID: 6,
		Config: map[string]any{"team_table": []any{
			map[string]any{"id": "team-a", "team": "backend", "integration_key": "key-a"},
		}},
	}
}

func TestHandleDeliverTask_Opsgenie(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		f := newNotificationFixture(nil, nil)
		f.integrations.On("GetOrganizationIntegration", ctx, testOrg.ID, int64(6)).Return(opsgenieInstall(), nil)
		f.alerts.On("CreateAlert", ctx, "key-a", mock.MatchedBy(func(a opsgenie.Alert) bool {
			return a.Alias == "trackr-group-11" && a.Priority == "P1" && a.Responders[0].ID == "team-a"
		})).Return(nil)

		task, err := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
			Provider: model.IntegrationOpsgenie, OrganizationID: testOrg.ID, Group: *notifyGroup,
			IntegrationID: 6, TargetID: "team-a", Priority: "P1",
		})
		require.NoError(t, err)
		require.NoError(t, f.svc.HandleDeliverTask(ctx, task))
		f.alerts.AssertExpectations(t)
	})

	t.Run("close", func(t *testing.T) {
		f := newNotificationFixture(nil, nil)
		f.integrations.On("GetOrganizationIntegration", ctx, testOrg.ID, int64(6)).Return(opsgenieInstall(), nil)
		f.alerts.On("CloseAlert", ctx, "key-a", "trackr-group-11").Return(nil)

		task, err := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
			Provider: model.IntegrationOpsgenie, OrganizationID: testOrg.ID, Group: *notifyGroup,
			IntegrationID: 6, TargetID: "team-a", Close: true,
		})
		require.NoError(t, err)
		require.NoError(t, f.svc.HandleDeliverTask(ctx, task))
		f.alerts.AssertExpectations(t)
	})

	t.Run("removed team is permanent", func(t *testing.T) {
		f := newNotificationFixture(nil, nil)
		f.integrations.On("GetOrganizationIntegration", ctx, testOrg.ID, int64(6)).Return(opsgenieInstall(), nil)

		task, err := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
			Provider: model.IntegrationOpsgenie, OrganizationID: testOrg.ID, Group: *notifyGroup,
			IntegrationID: 6, TargetID: "team-gone",
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.HandleDeliverTask(ctx, task), asynq.SkipRetry)
	})

	t.Run("rejected key is permanent", func(t *testing.T) {
		f := newNotificationFixture(nil, nil)
		f.integrations.On("GetOrganizationIntegration", ctx, testOrg.ID, int64(6)).Return(opsgenieInstall(), nil)
		f.alerts.On("CreateAlert", ctx, "key-a", mock.Anything).Return(opsgenie.ErrPermanent)

		task, err := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
			Provider: model.IntegrationOpsgenie, OrganizationID: testOrg.ID, Group: *notifyGroup,
			IntegrationID: 6, TargetID: "team-a",
		})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.HandleDeliverTask(ctx, task), asynq.SkipRetry)
	})
}

func TestHandleDeliverTask_MSTeams(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	f.teams.On("Send", ctx, "https://smba.test/", "conv-1", mock.Anything).Return(nil)

	task, err := job.NewNotificationDeliverTask(job.NotificationDeliverPayload{
		Provider: string(model.ProviderMSTeams),
		Group:    *notifyGroup,
		URL:      "https://trackr.test/organizations/acme/issues/11/",
		Recipient: model.Recipient{
			UserID: "u1", ExternalID: "teams-u1", ServiceURL: "https://smba.test/", ConversationID: "conv-1",
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleDeliverTask(ctx, task))
	f.teams.AssertExpectations(t)
}

func TestHandleEmailTask(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	data := map[string]string{"Title": "x"}
	f.email.On("SendEmail", ctx, "u1@acme.test", "New issue: x", email.TemplateIssueAlert, data, "").
		Return(errors.New("resend down"))

	task, err := job.NewEmailSendTask(job.EmailSendPayload{
		To: "u1@acme.test", Subject: "New issue: x", Template: string(email.TemplateIssueAlert), Data: data,
	})
	require.NoError(t, err)
	assert.Error(t, f.svc.HandleEmailTask(ctx, task))
}

func TestUpdateOptions_Validation(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)

	_, err := f.svc.UpdateOptions(ctx, "u1", []model.NotificationSettingOption{
		{ScopeType: model.ScopeUser, Type: model.NotifyAlerts, Value: model.SettingCommittedOnly},
	})
	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))

	_, err = f.svc.UpdateOptions(ctx, "u1", []model.NotificationSettingOption{
		{ScopeType: model.ScopeUser, ScopeIdentifier: "u2", Type: model.NotifyAlerts, Value: model.SettingNever},
	})
	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
	f.settings.AssertNotCalled(t, "UpsertOptions", mock.Anything, mock.Anything)

	f.settings.On("UpsertOptions", ctx, mock.Anything).Return(nil)
	saved, err := f.svc.UpdateOptions(ctx, "u1", []model.NotificationSettingOption{
		{ScopeType: model.ScopeUser, Type: model.NotifyDeploy, Value: model.SettingCommittedOnly},
		{ScopeType: model.ScopeProject, ScopeIdentifier: "3", Type: model.NotifyAlerts, Value: model.SettingNever},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", saved[0].ScopeIdentifier)
	assert.Equal(t, "u1", saved[1].UserID)
}

func TestUpdateProviders_Validation(t *testing.T) {
	f := newNotificationFixture(nil, nil)
	_, err := f.svc.UpdateProviders(context.Background(), "u1", []model.NotificationSettingProvider{
		{ScopeType: model.ScopeUser, Provider: model.ProviderEmail, Type: model.NotifyAlerts, Value: model.SettingSubscribeOnly},
	})
	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
}

func TestDeleteOption_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(nil, nil)
	f.settings.On("DeleteOption", ctx, "u1", int64(5)).Return(false, nil)

	err := f.svc.DeleteOption(ctx, "u1", 5)
	assert.True(t, errs.HasStatus(err, http.StatusNotFound))
}
