package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
)

type pluginService interface {
	GetSQS(ctx context.Context, projectID int64) (*service.SQSPlugin, error)
	ConfigureSQS(ctx context.Context, org *model.Organization, actor model.Actor, project *model.Project, cfg model.SQSConfig) (*service.SQSPlugin, error)
	DisableSQS(ctx context.Context, org *model.Organization, actor model.Actor, project *model.Project) error
}

type PluginHandler struct {
	Handler
	plugins pluginService
}

func NewPluginHandler(s *server.Server, plugins pluginService) *PluginHandler {
	return &PluginHandler{Handler: NewHandler(s), plugins: plugins}
}

func (h *PluginHandler) GetSQS(c echo.Context, _ *EmptyRequest) (*service.SQSPlugin, error) {
	return h.plugins.GetSQS(c.Request().Context(), middleware.GetProject(c).ID)
}

// ConfigureSQSRequest is validated by the plugin service, which also keeps
// the stored secret key when it is omitted.
type ConfigureSQSRequest struct {
	model.SQSConfig
}

func (r *ConfigureSQSRequest) Validate() error {
	return nil
}

func (h *PluginHandler) ConfigureSQS(c echo.Context, req *ConfigureSQSRequest) (*service.SQSPlugin, error) {
	return h.plugins.ConfigureSQS(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c),
		middleware.GetProject(c), req.SQSConfig)
}

func (h *PluginHandler) DisableSQS(c echo.Context, _ *EmptyRequest) error {
	return h.plugins.DisableSQS(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), middleware.GetProject(c))
}
