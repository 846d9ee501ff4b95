package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/deppfellow/trackr/internal/model"
)

type mockGroups struct {
	mock.Mock
}

func (m *mockGroups) ResolveGroup(ctx context.Context, orgID, id int64) (*model.Group, bool, error) {
	args := m.Called(ctx, orgID, id)
	g, _ := args.Get(0).(*model.Group)
	return g, args.Bool(1), args.Error(2)
}

func (m *mockGroups) MergeGroups(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64) (*model.MergeResult, error) {
	args := m.Called(ctx, org, actor, ids)
	r, _ := args.Get(0).(*model.MergeResult)
	return r, args.Error(1)
}

func (m *mockGroups) UpdateStatus(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64, status model.GroupStatus) ([]model.Group, error) {
	args := m.Called(ctx, org, actor, ids, status)
	g, _ := args.Get(0).([]model.Group)
	return g, args.Error(1)
}

func (m *mockGroups) ListGroupEvents(ctx context.Context, orgID, id int64, limit int) ([]model.Event, error) {
	args := m.Called(ctx, orgID, id, limit)
	e, _ := args.Get(0).([]model.Event)
	return e, args.Error(1)
}

func TestGetIssue(t *testing.T) {
	s := testServer()

	t.Run("live group", func(t *testing.T) {
		groups := &mockGroups{}
		groups.On("ResolveGroup", mock.Anything, int64(1), int64(11)).Return(&model.Group{ID: 11, Title: "TypeError"}, false, nil)
		h := NewIssueHandler(s, groups)

		rec := call(s, http.MethodGet, "/organizations/:org/issues/:issue_id/", "/organizations/acme/issues/11/", "",
			HandleRedirect(h.Handler, h.GetIssue, &IssueRequest{}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":11`)
	})

	t.Run("merged group redirects", func(t *testing.T) {
		groups := &mockGroups{}
		groups.On("ResolveGroup", mock.Anything, int64(1), int64(9)).Return(&model.Group{ID: 11}, true, nil)
		h := NewIssueHandler(s, groups)

		rec := call(s, http.MethodGet, "/organizations/:org/issues/:issue_id/", "/organizations/acme/issues/9/", "",
			HandleRedirect(h.Handler, h.GetIssue, &IssueRequest{}))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://trackr.test/api/0/organizations/acme/issues/11/", rec.Header().Get("Location"))
		assert.JSONEq(t, `{"detail":{"code":"resource-moved","extra":{"url":"https://trackr.test/api/0/organizations/acme/issues/11/","id":11}}}`, rec.Body.String())
	})

	t.Run("bad id", func(t *testing.T) {
		h := NewIssueHandler(s, &mockGroups{})
		rec := call(s, http.MethodGet, "/organizations/:org/issues/:issue_id/", "/organizations/acme/issues/abc/", "",
			HandleRedirect(h.Handler, h.GetIssue, &IssueRequest{}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateIssues(t *testing.T) {
	s := testServer()
	actor := model.Actor{UserID: "u1", Label: "u1@acme.test", Role: model.RoleAdmin, IPAddress: "192.0.2.1"}

	groups := &mockGroups{}
	groups.On("UpdateStatus", mock.Anything, testOrg, actor, []int64{3, 4}, model.GroupStatusResolved).
		Return([]model.Group{{ID: 3}, {ID: 4}}, nil)
	h := NewIssueHandler(s, groups)
	handle := Handle(h.Handler, h.UpdateIssues, http.StatusOK, &UpdateIssuesRequest{})

	rec := call(s, http.MethodPut, "/organizations/:org/issues/", "/organizations/acme/issues/?id=3&id=4", `{"status":"resolved"}`, handle)
	assert.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)

	rec = call(s, http.MethodPut, "/organizations/:org/issues/", "/organizations/acme/issues/?id=x", `{"status":"resolved"}`, handle)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id", decodeError(t, rec).Errors[0].Field)
}

func TestMergeIssues(t *testing.T) {
	s := testServer()
	groups := &mockGroups{}
	groups.On("MergeGroups", mock.Anything, testOrg, mock.Anything, []int64{3, 4, 5}).
		Return(&model.MergeResult{Parent: 5, Children: []int64{3, 4}}, nil)
	h := NewIssueHandler(s, groups)

	rec := call(s, http.MethodPost, "/organizations/:org/issues/merge/", "/organizations/acme/issues/merge/", `{"ids":[3,4,5]}`,
		Handle(h.Handler, h.MergeIssues, http.StatusOK, &MergeIssuesRequest{}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"merge":{"parent":5,"children":[3,4]}}`, rec.Body.String())
	groups.AssertExpectations(t)
}

func TestMergeIssues_NeedsTwoIDs(t *testing.T) {
	s := testServer()
	h := NewIssueHandler(s, &mockGroups{})

	rec := call(s, http.MethodPost, "/organizations/:org/issues/merge/", "/organizations/acme/issues/merge/", `{"ids":[3]}`,
		Handle(h.Handler, h.MergeIssues, http.StatusOK, &MergeIssuesRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ids", decodeError(t, rec).Errors[0].Field)
}
