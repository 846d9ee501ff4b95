package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/job"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/repository"
	"github.com/deppfellow/trackr/internal/sqlerr"
)

// redirectGraph answers ListRedirectsTouching from a fixed set.
type redirectGraph struct {
	mockGroupRepo
	redirects []model.GroupRedirect
	calls     int
}

func (g *redirectGraph) ListRedirectsTouching(_ context.Context, ids []int64) ([]model.GroupRedirect, error) {
	g.calls++
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.GroupRedirect
	for _, r := range g.redirects {
		if want[r.GroupID] || want[r.PreviousGroupID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func newGroupService(repo groupRepository, q *recordingQueue, audit *recordingAudit, notifier GroupNotifier) *GroupService {
	return NewGroupService(repo, &mockGroupRepo{}, q, audit, notifier, metrics.New(), testLogger())
}

func TestGetAllMergedGroupIDs_FollowsChains(t *testing.T) {
	repo := &redirectGraph{redirects: []model.GroupRedirect{
		{GroupID: 1, PreviousGroupID: 2},
		{GroupID: 2, PreviousGroupID: 3},
		{GroupID: 3, PreviousGroupID: 4},
		{GroupID: 10, PreviousGroupID: 11},
	}}
	svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})

	ids, err := svc.GetAllMergedGroupIDs(context.Background(), []int64{3}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestGetAllMergedGroupIDs_StopsAtMaxSize(t *testing.T) {
	repo := &redirectGraph{redirects: []model.GroupRedirect{
		{GroupID: 1, PreviousGroupID: 2},
		{GroupID: 1, PreviousGroupID: 3},
		{GroupID: 1, PreviousGroupID: 4},
	}}
	svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})

	ids, err := svc.GetAllMergedGroupIDs(context.Background(), []int64{1}, 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, int64(1))
}

func TestGetAllMergedGroupIDs_DeduplicatesInput(t *testing.T) {
	repo := &redirectGraph{}
	svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})

	ids, err := svc.GetAllMergedGroupIDs(context.Background(), []int64{5, 5, 4}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, ids)
	assert.Equal(t, 1, repo.calls)
}

func TestResolveGroup_FollowsRedirect(t *testing.T) {
	repo := &mockGroupRepo{}
	ctx := context.Background()
	repo.On("GetGroup", ctx, int64(1), int64(2)).Return(nil, sqlerr.NotFound("groups", pgx.ErrNoRows))
	repo.On("GetRedirect", ctx, int64(1), int64(2)).Return(&model.GroupRedirect{GroupID: 7, PreviousGroupID: 2}, nil)
	repo.On("GetGroup", ctx, int64(1), int64(7)).Return(&model.Group{ID: 7}, nil)

	svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})
	group, redirected, err := svc.ResolveGroup(ctx, 1, 2)

	require.NoError(t, err)
	assert.True(t, redirected)
	assert.Equal(t, int64(7), group.ID)
	repo.AssertExpectations(t)
}

func TestListGroupEvents_MergedAwayID(t *testing.T) {
	ctx := context.Background()
	repo := &redirectGraph{redirects: []model.GroupRedirect{{GroupID: 7, PreviousGroupID: 2}}}
	repo.On("GetGroup", ctx, int64(1), int64(2)).Return(nil, sqlerr.NotFound("groups", pgx.ErrNoRows))
	repo.On("GetRedirect", ctx, int64(1), int64(2)).Return(&model.GroupRedirect{GroupID: 7, PreviousGroupID: 2}, nil)
	repo.On("GetGroup", ctx, int64(1), int64(7)).Return(&model.Group{ID: 7}, nil)

	events := &mockGroupRepo{}
	events.On("ListForGroups", ctx, []int64{2, 7}, defaultGroupEventLimit).
		Return([]model.Event{{GroupID: 7, Message: "boom"}}, nil)

	svc := NewGroupService(repo, events, &recordingQueue{}, &recordingAudit{}, &mockNotifier{}, metrics.New(), testLogger())
	got, err := svc.ListGroupEvents(ctx, 1, 2, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
	repo.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestMergeGroups_PicksMostSeenParent(t *testing.T) {
	repo := &mockGroupRepo{}
	ctx := context.Background()
	groups := []model.Group{
		{ID: 5, ProjectID: 3, TimesSeen: 10},
		{ID: 9, ProjectID: 3, TimesSeen: 30},
		{ID: 7, ProjectID: 3, TimesSeen: 30},
	}
	repo.On("GetGroups", ctx, testOrg.ID, mock.Anything).Return(groups, nil)
	repo.On("MarkMerging", ctx, testOrg.ID, mock.MatchedBy(func(p *model.Group) bool { return p.ID == 7 }), mock.Anything).Return(nil)

	q := &recordingQueue{}
	audit := &recordingAudit{}
	svc := newGroupService(repo, q, audit, &mockNotifier{})

	result, err := svc.MergeGroups(ctx, testOrg, testWriter, []int64{5, 9, 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Parent)
	assert.Equal(t, []int64{5, 9}, result.Children)

	require.Len(t, q.tasks, 2)
	for _, task := range q.tasks {
		assert.Equal(t, job.TaskGroupMerge, task.Type())
		assert.Equal(t, int64(7), decodeTask[job.GroupMergePayload](task).ParentID)
	}
	assert.Equal(t, []model.AuditLogEvent{model.AuditIssueMerge}, audit.events())
	repo.AssertExpectations(t)
}

func TestMergeGroups_RejectsBadInput(t *testing.T) {
	ctx := context.Background()

	t.Run("single group", func(t *testing.T) {
		svc := newGroupService(&mockGroupRepo{}, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})
		_, err := svc.MergeGroups(ctx, testOrg, testWriter, []int64{4, 4})
		assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
	})

	t.Run("different projects", func(t *testing.T) {
		repo := &mockGroupRepo{}
		repo.On("GetGroups", ctx, testOrg.ID, mock.Anything).Return([]model.Group{
			{ID: 1, ProjectID: 1},
			{ID: 2, ProjectID: 2},
		}, nil)
		svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})
		_, err := svc.MergeGroups(ctx, testOrg, testWriter, []int64{1, 2})
		assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
		repo.AssertNotCalled(t, "MarkMerging", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing group", func(t *testing.T) {
		repo := &mockGroupRepo{}
		repo.On("GetGroups", ctx, testOrg.ID, mock.Anything).Return([]model.Group{{ID: 1, ProjectID: 1}}, nil)
		svc := newGroupService(repo, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})
		_, err := svc.MergeGroups(ctx, testOrg, testWriter, []int64{1, 2})
		assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
	})
}

func TestMergeGroups_ConcurrentMergeWins(t *testing.T) {
	ctx := context.Background()
	repo := &mockGroupRepo{}
	repo.On("GetGroups", ctx, testOrg.ID, mock.Anything).Return([]model.Group{
		{ID: 1, ProjectID: 1, TimesSeen: 2},
		{ID: 2, ProjectID: 1, TimesSeen: 1},
	}, nil)
	// Another merge claimed group 2 after the read above.
	repo.On("MarkMerging", ctx, testOrg.ID, mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: group 2 is already being merged", repository.ErrMergeConflict))

	q := &recordingQueue{}
	audit := &recordingAudit{}
	svc := newGroupService(repo, q, audit, &mockNotifier{})
	_, err := svc.MergeGroups(ctx, testOrg, testWriter, []int64{1, 2})

	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
	assert.Empty(t, q.tasks)
	assert.Empty(t, audit.entries)
}

func TestUpdateStatus_ResolveNotifies(t *testing.T) {
	repo := &mockGroupRepo{}
	ctx := context.Background()
	resolved := []model.Group{{ID: 4, ProjectID: 3, Title: "boom", Status: model.GroupStatusResolved}}
	repo.On("UpdateStatus", ctx, testOrg.ID, []int64{4}, model.GroupStatusResolved).Return(resolved, nil)

	notifier := &mockNotifier{}
	notifier.On("CloseAlerts", ctx, testOrg, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, mock.MatchedBy(func(n *model.Notification) bool {
		return n.Type == model.NotifyWorkflow && n.Group.ID == 4
	})).Return(nil)

	audit := &recordingAudit{}
	svc := newGroupService(repo, &recordingQueue{}, audit, notifier)

	groups, err := svc.UpdateStatus(ctx, testOrg, testWriter, []int64{4}, model.GroupStatusResolved)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Equal(t, []model.AuditLogEvent{model.AuditIssueResolve}, audit.events())
	notifier.AssertExpectations(t)
}

func TestUpdateStatus_RejectsPendingMerge(t *testing.T) {
	svc := newGroupService(&mockGroupRepo{}, &recordingQueue{}, &recordingAudit{}, &mockNotifier{})
	_, err := svc.UpdateStatus(context.Background(), testOrg, testWriter, []int64{1}, model.GroupStatusPendingMerge)
	assert.True(t, errs.HasStatus(err, http.StatusBadRequest))
}
