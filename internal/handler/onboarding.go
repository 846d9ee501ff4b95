package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type onboardingService interface {
	List(ctx context.Context, orgID int64) ([]model.OnboardingTask, error)
	Update(ctx context.Context, orgID int64, userID string, req service.UpdateOnboardingTask) error
}

type OnboardingHandler struct {
	Handler
	onboarding onboardingService
}

func NewOnboardingHandler(s *server.Server, onboarding onboardingService) *OnboardingHandler {
	return &OnboardingHandler{Handler: NewHandler(s), onboarding: onboarding}
}

func (h *OnboardingHandler) List(c echo.Context, _ *EmptyRequest) ([]model.OnboardingTask, error) {
	return h.onboarding.List(c.Request().Context(), middleware.GetOrganization(c).ID)
}

type UpdateOnboardingRequest struct {
	Task           model.OnboardingTaskName `json:"task" validate:"required"`
	Status         *model.OnboardingStatus  `json:"status"`
	CompletionSeen *time.Time               `json:"completionSeen"`
}

func (r *UpdateOnboardingRequest) Validate() error {
	return validation.Struct(r)
}

// Update skips a task or marks its completion as seen.
func (h *OnboardingHandler) Update(c echo.Context, req *UpdateOnboardingRequest) error {
	return h.onboarding.Update(c.Request().Context(), middleware.GetOrganization(c).ID, middleware.GetUserID(c),
		service.UpdateOnboardingTask{
			Task:           req.Task,
			Status:         req.Status,
			CompletionSeen: req.CompletionSeen,
		})
}
