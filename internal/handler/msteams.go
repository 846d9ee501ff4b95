package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/msteams"
	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type msteamsService interface {
	HandleActivity(ctx context.Context, a *msteams.Activity) error
	GetLinkIdentity(ctx context.Context, token string) (*service.LinkConfirmation, error)
	LinkIdentity(ctx context.Context, token string, actor model.Actor) (*model.Identity, error)
	UnlinkIdentity(ctx context.Context, token string, actor model.Actor) error
}

type activityVerifier interface {
	Verify(ctx context.Context, authorization, serviceURL string) error
}

type MSTeamsHandler struct {
	Handler
	teams    msteamsService
	verifier activityVerifier
}

func NewMSTeamsHandler(s *server.Server, teams msteamsService, verifier activityVerifier) *MSTeamsHandler {
	return &MSTeamsHandler{Handler: NewHandler(s), teams: teams, verifier: verifier}
}

type ActivityRequest struct {
	msteams.Activity
}

func (r *ActivityRequest) Validate() error {
	if r.Type == "" {
		return validation.CustomValidationErrors{{Field: "type", Message: "is required"}}
	}
	return nil
}

// Webhook receives Bot Framework activities. Each one must carry a channel
// token whose serviceurl claim matches the activity.
func (h *MSTeamsHandler) Webhook(c echo.Context, req *ActivityRequest) error {
	ctx := c.Request().Context()
	if err := h.verifier.Verify(ctx, c.Request().Header.Get(echo.HeaderAuthorization), req.ServiceURL); err != nil {
		middleware.GetLogger(c).Warn().Err(err).Msg("rejected msteams activity")
		return errs.NewUnauthorizedError("Invalid Bot Framework token", false)
	}
	return h.teams.HandleActivity(ctx, &req.Activity)
}

type SignedParamsRequest struct {
	SignedParams string `param:"signed_params" validate:"required"`
}

func (r *SignedParamsRequest) Validate() error {
	return validation.Struct(r)
}

// GetLink describes the pending link so the user can confirm it.
func (h *MSTeamsHandler) GetLink(c echo.Context, req *SignedParamsRequest) (*service.LinkConfirmation, error) {
	return h.teams.GetLinkIdentity(c.Request().Context(), req.SignedParams)
}

func (h *MSTeamsHandler) Link(c echo.Context, req *SignedParamsRequest) (*model.Identity, error) {
	return h.teams.LinkIdentity(c.Request().Context(), req.SignedParams, middleware.GetActor(c))
}

func (h *MSTeamsHandler) Unlink(c echo.Context, req *SignedParamsRequest) error {
	return h.teams.UnlinkIdentity(c.Request().Context(), req.SignedParams, middleware.GetActor(c))
}
