package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type sourceCodeService interface {
	ListRepositories(ctx context.Context, orgID int64, status string) ([]model.Repository, error)
	CreateRepository(ctx context.Context, org *model.Organization, actor model.Actor, req service.CreateRepository) (*model.Repository, error)
	DeleteRepository(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error
	ListCommits(ctx context.Context, orgID, repoID int64, limit int) ([]model.Commit, error)
	RequestCommits(ctx context.Context, orgID, repoID int64, req service.FetchCommits) error
}

type SourceCodeHandler struct {
	Handler
	repos sourceCodeService
}

func NewSourceCodeHandler(s *server.Server, repos sourceCodeService) *SourceCodeHandler {
	return &SourceCodeHandler{Handler: NewHandler(s), repos: repos}
}

type ListRepositoriesRequest struct {
	Status string `query:"status"`
}

func (r *ListRepositoriesRequest) Validate() error {
	return nil
}

func (h *SourceCodeHandler) ListRepositories(c echo.Context, req *ListRepositoriesRequest) ([]model.Repository, error) {
	return h.repos.ListRepositories(c.Request().Context(), middleware.GetOrganization(c).ID, req.Status)
}

type CreateRepositoryRequest struct {
	Provider      string         `json:"provider" validate:"required"`
	Name          string         `json:"name" validate:"required,max=200"`
	ExternalID    string         `json:"external_id"`
	URL           string         `json:"url" validate:"omitempty,url"`
	IntegrationID *int64         `json:"integration_id"`
	Config        map[string]any `json:"config"`
}

func (r *CreateRepositoryRequest) Validate() error {
	return validation.Struct(r)
}

func (h *SourceCodeHandler) CreateRepository(c echo.Context, req *CreateRepositoryRequest) (*model.Repository, error) {
	return h.repos.CreateRepository(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c),
		service.CreateRepository{
			Provider:      req.Provider,
			Name:          req.Name,
			ExternalID:    req.ExternalID,
			URL:           req.URL,
			IntegrationID: req.IntegrationID,
			Config:        req.Config,
		})
}

func (h *SourceCodeHandler) DeleteRepository(c echo.Context, req *IDRequest) error {
	return h.repos.DeleteRepository(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.ID)
}

type ListCommitsRequest struct {
	ID    int64 `param:"id" validate:"required,min=1"`
	Limit int   `query:"limit" validate:"min=0"`
}

func (r *ListCommitsRequest) Validate() error {
	return validation.Struct(r)
}

func (h *SourceCodeHandler) ListCommits(c echo.Context, req *ListCommitsRequest) ([]model.Commit, error) {
	return h.repos.ListCommits(c.Request().Context(), middleware.GetOrganization(c).ID, req.ID, req.Limit)
}

type FetchCommitsRequest struct {
	ID       int64  `param:"id" validate:"required,min=1"`
	StartSHA string `json:"start_sha"`
	EndSHA   string `json:"end_sha" validate:"required"`
	Version  string `json:"version"`
}

func (r *FetchCommitsRequest) Validate() error {
	return validation.Struct(r)
}

// FetchCommits queues a comparison of two revisions on the provider.
func (h *SourceCodeHandler) FetchCommits(c echo.Context, req *FetchCommitsRequest) error {
	return h.repos.RequestCommits(c.Request().Context(), middleware.GetOrganization(c).ID, req.ID, service.FetchCommits{
		StartSHA: req.StartSHA,
		EndSHA:   req.EndSHA,
		Version:  req.Version,
	})
}
