package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type issueService interface {
	ResolveGroup(ctx context.Context, orgID, id int64) (*model.Group, bool, error)
	MergeGroups(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64) (*model.MergeResult, error)
	UpdateStatus(ctx context.Context, org *model.Organization, actor model.Actor, ids []int64, status model.GroupStatus) ([]model.Group, error)
	ListGroupEvents(ctx context.Context, orgID, id int64, limit int) ([]model.Event, error)
}

var _ issueService = (*service.GroupService)(nil)

type IssueHandler struct {
	Handler
	groups issueService
}

func NewIssueHandler(s *server.Server, groups issueService) *IssueHandler {
	return &IssueHandler{Handler: NewHandler(s), groups: groups}
}

type IssueRequest struct {
	IssueID int64 `param:"issue_id" validate:"required,min=1"`
}

func (r *IssueRequest) Validate() error {
	return validation.Struct(r)
}

// GetIssue returns the group. An id that was merged away answers 302 to the
// surviving group.
func (h *IssueHandler) GetIssue(c echo.Context, req *IssueRequest) (interface{}, error) {
	org := middleware.GetOrganization(c)
	group, redirected, err := h.groups.ResolveGroup(c.Request().Context(), org.ID, req.IssueID)
	if err != nil {
		return nil, err
	}
	if !redirected {
		return group, nil
	}
	location := fmt.Sprintf("%s/api/0/organizations/%s/issues/%d/",
		strings.TrimSuffix(h.server.Config.Server.PublicURL, "/"), org.Slug, group.ID)

	var moved ResourceMoved
	moved.Detail.Code = "resource-moved"
	moved.Detail.Extra.URL = location
	moved.Detail.Extra.ID = group.ID
	return Redirect{Location: location, Body: moved}, nil
}

// ResourceMoved is the body of a redirect to a group's merge target.
type ResourceMoved struct {
	Detail struct {
		Code  string `json:"code"`
		Extra struct {
			URL string `json:"url"`
			ID  int64  `json:"id"`
		} `json:"extra"`
	} `json:"detail"`
}

type UpdateIssuesRequest struct {
	Status model.GroupStatus `json:"status" validate:"required"`
}

func (r *UpdateIssuesRequest) Validate() error {
	return validation.Struct(r)
}

// UpdateIssues sets the status of every ?id= group.
func (h *IssueHandler) UpdateIssues(c echo.Context, req *UpdateIssuesRequest) ([]model.Group, error) {
	ids, err := queryIDs(c, "id")
	if err != nil {
		return nil, err
	}
	return h.groups.UpdateStatus(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), ids, req.Status)
}

type MergeIssuesRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=2,dive,min=1"`
}

func (r *MergeIssuesRequest) Validate() error {
	return validation.Struct(r)
}

// MergeResponse wraps the merge outcome as {"merge": {...}}.
type MergeResponse struct {
	Merge *model.MergeResult `json:"merge"`
}

func (h *IssueHandler) MergeIssues(c echo.Context, req *MergeIssuesRequest) (*MergeResponse, error) {
	result, err := h.groups.MergeGroups(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.IDs)
	if err != nil {
		return nil, err
	}
	return &MergeResponse{Merge: result}, nil
}

type IssueEventsRequest struct {
	IssueID int64 `param:"issue_id" validate:"required,min=1"`
	Limit   int   `query:"limit" validate:"min=0"`
}

func (r *IssueEventsRequest) Validate() error {
	return validation.Struct(r)
}

// ListEvents lists the events of the group and of every group merged into
// it.
func (h *IssueHandler) ListEvents(c echo.Context, req *IssueEventsRequest) ([]model.Event, error) {
	org := middleware.GetOrganization(c)
	return h.groups.ListGroupEvents(c.Request().Context(), org.ID, req.IssueID, req.Limit)
}
