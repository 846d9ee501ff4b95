package service

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/deppfellow/trackr/internal/lib/email"
	"github.com/deppfellow/trackr/internal/lib/opsgenie"
	"github.com/deppfellow/trackr/internal/model"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

var (
	testOrg    = &model.Organization{ID: 1, Slug: "acme", Name: "Acme", Status: "active"}
	testWriter = model.Actor{UserID: "user_admin", Label: "admin@acme.test", Role: model.RoleAdmin}
	testMember = model.Actor{UserID: "user_member", Label: "member@acme.test", Role: model.RoleMember}
)

// recordingAudit keeps every recorded entry.
type recordingAudit struct {
	entries []*model.AuditLogEntry
}

func (a *recordingAudit) Record(_ context.Context, entry *model.AuditLogEntry) {
	a.entries = append(a.entries, entry)
}

func (a *recordingAudit) events() []model.AuditLogEvent {
	out := make([]model.AuditLogEvent, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

type mockOnboarding struct {
	mock.Mock
}

func (m *mockOnboarding) Complete(ctx context.Context, orgID int64, task model.OnboardingTaskName, userID string) error {
	return m.Called(ctx, orgID, task, userID).Error(0)
}

// recordingQueue accepts every task.
type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (q *recordingQueue) types() []string {
	out := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Type())
	}
	return out
}

func decodeTask[T any](t *asynq.Task) T {
	var p T
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		panic(err)
	}
	return p
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n *model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockNotifier) CloseAlerts(ctx context.Context, org *model.Organization, g *model.Group) error {
	return m.Called(ctx, org, g).Error(0)
}

type mockGroupRepo struct {
	mock.Mock
}

func (m *mockGroupRepo) GetGroup(ctx context.Context, orgID, id int64) (*model.Group, error) {
	args := m.Called(ctx, orgID, id)
	g, _ := args.Get(0).(*model.Group)
	return g, args.Error(1)
}

func (m *mockGroupRepo) GetGroups(ctx context.Context, orgID int64, ids []int64) ([]model.Group, error) {
	args := m.Called(ctx, orgID, ids)
	g, _ := args.Get(0).([]model.Group)
	return g, args.Error(1)
}

func (m *mockGroupRepo) GetRedirect(ctx context.Context, orgID, previousGroupID int64) (*model.GroupRedirect, error) {
	args := m.Called(ctx, orgID, previousGroupID)
	r, _ := args.Get(0).(*model.GroupRedirect)
	return r, args.Error(1)
}

func (m *mockGroupRepo) ListRedirectsTouching(ctx context.Context, ids []int64) ([]model.GroupRedirect, error) {
	args := m.Called(ctx, ids)
	r, _ := args.Get(0).([]model.GroupRedirect)
	return r, args.Error(1)
}

func (m *mockGroupRepo) MarkMerging(ctx context.Context, orgID int64, parent *model.Group, children []model.Group) error {
	return m.Called(ctx, orgID, parent, children).Error(0)
}

func (m *mockGroupRepo) CompleteMerge(ctx context.Context, parentID, childID int64) error {
	return m.Called(ctx, parentID, childID).Error(0)
}

func (m *mockGroupRepo) UpdateStatus(ctx context.Context, orgID int64, ids []int64, status model.GroupStatus) ([]model.Group, error) {
	args := m.Called(ctx, orgID, ids, status)
	g, _ := args.Get(0).([]model.Group)
	return g, args.Error(1)
}

func (m *mockGroupRepo) ListForGroups(ctx context.Context, groupIDs []int64, limit int) ([]model.Event, error) {
	args := m.Called(ctx, groupIDs, limit)
	e, _ := args.Get(0).([]model.Event)
	return e, args.Error(1)
}

type mockIntegrationRepo struct {
	mock.Mock
}

func (m *mockIntegrationRepo) GetIntegration(ctx context.Context, id int64) (*model.Integration, error) {
	args := m.Called(ctx, id)
	i, _ := args.Get(0).(*model.Integration)
	return i, args.Error(1)
}

func (m *mockIntegrationRepo) GetIntegrationByExternalID(ctx context.Context, provider, externalID string) (*model.Integration, error) {
	args := m.Called(ctx, provider, externalID)
	i, _ := args.Get(0).(*model.Integration)
	return i, args.Error(1)
}

func (m *mockIntegrationRepo) ListOrganizationIntegrations(ctx context.Context, orgID int64) ([]model.OrganizationIntegration, error) {
	args := m.Called(ctx, orgID)
	l, _ := args.Get(0).([]model.OrganizationIntegration)
	return l, args.Error(1)
}

func (m *mockIntegrationRepo) GetOrganizationIntegration(ctx context.Context, orgID, integrationID int64) (*model.OrganizationIntegration, error) {
	args := m.Called(ctx, orgID, integrationID)
	oi, _ := args.Get(0).(*model.OrganizationIntegration)
	return oi, args.Error(1)
}

func (m *mockIntegrationRepo) ListInstallations(ctx context.Context, integrationID int64) ([]model.OrganizationIntegration, error) {
	args := m.Called(ctx, integrationID)
	l, _ := args.Get(0).([]model.OrganizationIntegration)
	return l, args.Error(1)
}

func (m *mockIntegrationRepo) Install(ctx context.Context, integration *model.Integration, oi *model.OrganizationIntegration) error {
	return m.Called(ctx, integration, oi).Error(0)
}

func (m *mockIntegrationRepo) UpdateConfig(ctx context.Context, orgID, integrationID int64, config map[string]any) error {
	return m.Called(ctx, orgID, integrationID, config).Error(0)
}

func (m *mockIntegrationRepo) Uninstall(ctx context.Context, orgID, integrationID int64) error {
	return m.Called(ctx, orgID, integrationID).Error(0)
}

func (m *mockIntegrationRepo) ListAlertActions(ctx context.Context, projectID int64, provider string) ([]model.AlertAction, error) {
	args := m.Called(ctx, projectID, provider)
	a, _ := args.Get(0).([]model.AlertAction)
	return a, args.Error(1)
}

func (m *mockIntegrationRepo) GetIdentity(ctx context.Context, provider, idpExternalID, externalID string) (*model.Identity, error) {
	args := m.Called(ctx, provider, idpExternalID, externalID)
	i, _ := args.Get(0).(*model.Identity)
	return i, args.Error(1)
}

func (m *mockIntegrationRepo) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *mockIntegrationRepo) DeleteIdentity(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockIntegrationRepo) ListIdentitiesForUsers(ctx context.Context, provider string, userIDs []string) ([]model.Identity, error) {
	args := m.Called(ctx, provider, userIDs)
	l, _ := args.Get(0).([]model.Identity)
	return l, args.Error(1)
}

type mockTenancyRepo struct {
	mock.Mock
}

func (m *mockTenancyRepo) GetOrganizationBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	args := m.Called(ctx, slug)
	o, _ := args.Get(0).(*model.Organization)
	return o, args.Error(1)
}

func (m *mockTenancyRepo) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*model.Organization)
	return o, args.Error(1)
}

func (m *mockTenancyRepo) GetProject(ctx context.Context, orgID int64, slug string) (*model.Project, error) {
	args := m.Called(ctx, orgID, slug)
	p, _ := args.Get(0).(*model.Project)
	return p, args.Error(1)
}

func (m *mockTenancyRepo) GetProjectByID(ctx context.Context, id int64) (*model.Project, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Project)
	return p, args.Error(1)
}

func (m *mockTenancyRepo) GetMember(ctx context.Context, orgID int64, userID string) (*model.Member, error) {
	args := m.Called(ctx, orgID, userID)
	mem, _ := args.Get(0).(*model.Member)
	return mem, args.Error(1)
}

func (m *mockTenancyRepo) ListProjectMembers(ctx context.Context, projectID int64) ([]model.Member, error) {
	args := m.Called(ctx, projectID)
	l, _ := args.Get(0).([]model.Member)
	return l, args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, serviceURL, conversationID string, activity json.RawMessage) error {
	return m.Called(ctx, serviceURL, conversationID, activity).Error(0)
}

type mockAlerts struct {
	mock.Mock
}

func (m *mockAlerts) CreateAlert(ctx context.Context, key string, alert opsgenie.Alert) error {
	return m.Called(ctx, key, alert).Error(0)
}

func (m *mockAlerts) CloseAlert(ctx context.Context, key, alias string) error {
	return m.Called(ctx, key, alias).Error(0)
}

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendEmail(ctx context.Context, to, subject string, tmpl email.Template, data map[string]string, key string) error {
	return m.Called(ctx, to, subject, tmpl, data, key).Error(0)
}
