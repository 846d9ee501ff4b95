package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/validation"
)

type apiKeyService interface {
	List(ctx context.Context, org *model.Organization, actor model.Actor) ([]model.APIKey, error)
	Create(ctx context.Context, org *model.Organization, actor model.Actor, label string) (*model.CreatedAPIKey, error)
	Revoke(ctx context.Context, org *model.Organization, actor model.Actor, id int64) error
}

type APIKeyHandler struct {
	Handler
	keys apiKeyService
}

func NewAPIKeyHandler(s *server.Server, keys apiKeyService) *APIKeyHandler {
	return &APIKeyHandler{Handler: NewHandler(s), keys: keys}
}

func (h *APIKeyHandler) List(c echo.Context, _ *EmptyRequest) ([]model.APIKey, error) {
	return h.keys.List(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c))
}

type CreateAPIKeyRequest struct {
	Label string `json:"label" validate:"required,max=64"`
}

func (r *CreateAPIKeyRequest) Validate() error {
	return validation.Struct(r)
}

func (h *APIKeyHandler) Create(c echo.Context, req *CreateAPIKeyRequest) (*model.CreatedAPIKey, error) {
	return h.keys.Create(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.Label)
}

func (h *APIKeyHandler) Revoke(c echo.Context, req *IDRequest) error {
	return h.keys.Revoke(c.Request().Context(), middleware.GetOrganization(c), middleware.GetActor(c), req.ID)
}
