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

type integrationService interface {
	List(ctx context.Context, orgID int64) ([]model.OrganizationIntegration, error)
	Install(ctx context.Context, org *model.Organization, actor model.Actor, req service.InstallIntegration) (*model.OrganizationIntegration, error)
	UpdateConfig(ctx context.Context, org *model.Organization, actor model.Actor, integrationID int64, config map[string]any) (*model.OrganizationIntegration, error)
	Uninstall(ctx context.Context, org *model.Organization, actor model.Actor, integrationID int64) error
}

type IntegrationHandler struct {
	Handler
	integrations integrationService
}

func NewIntegrationHandler(s *server.Server, integrations integrationService) *IntegrationHandler {
	return &IntegrationHandler{Handler: NewHandler(s), integrations: integrations}
}

func (h *IntegrationHandler) List(c echo.Context, _ *EmptyRequest) ([]model.OrganizationIntegration, error) {
	return h.integrations.List(c.Request().Context(), middleware.GetOrganization(c).ID)
}

type InstallIntegrationRequest struct {
	Provider   string         `json:"provider" validate:"required"`
	ExternalID string         `json:"external_id" validate:"required,max=64"`
	Name       string         `json:"name" validate:"required,max=200"`
	Metadata   map[string]any `json:"metadata"`
	Config     map[string]any `json:"config"`
}

func (r *InstallIntegrationRequest) Validate() error {
	return validation.Struct(r)
}

func (h *IntegrationHandler) Install(c echo.Context, req *InstallIntegrationRequest) (*model.OrganizationIntegration, error) {
	return h.integrations.Install(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c),
		service.InstallIntegration{
			Provider:   req.Provider,
			ExternalID: req.ExternalID,
			Name:       req.Name,
			Metadata:   req.Metadata,
			Config:     req.Config,
		})
}

type UpdateIntegrationRequest struct {
	ID     int64          `param:"id" validate:"required,min=1"`
	Config map[string]any `json:"config" validate:"required"`
}

func (r *UpdateIntegrationRequest) Validate() error {
	return validation.Struct(r)
}

func (h *IntegrationHandler) Update(c echo.Context, req *UpdateIntegrationRequest) (*model.OrganizationIntegration, error) {
	return h.integrations.UpdateConfig(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.ID, req.Config)
}

func (h *IntegrationHandler) Uninstall(c echo.Context, req *IDRequest) error {
	return h.integrations.Uninstall(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.ID)
}
