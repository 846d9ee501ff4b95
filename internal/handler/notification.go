package handler

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
)

type notificationSettings interface {
	ListOptions(ctx context.Context, userID, typ string) ([]model.NotificationSettingOption, error)
	UpdateOptions(ctx context.Context, userID string, options []model.NotificationSettingOption) ([]model.NotificationSettingOption, error)
	DeleteOption(ctx context.Context, userID string, id int64) error
	ListProviders(ctx context.Context, userID, typ string) ([]model.NotificationSettingProvider, error)
	UpdateProviders(ctx context.Context, userID string, providers []model.NotificationSettingProvider) ([]model.NotificationSettingProvider, error)
	DeleteProvider(ctx context.Context, userID string, id int64) error
}

// NotificationHandler serves the settings of the authenticated user.
type NotificationHandler struct {
	Handler
	settings notificationSettings
}

func NewNotificationHandler(s *server.Server, settings notificationSettings) *NotificationHandler {
	return &NotificationHandler{Handler: NewHandler(s), settings: settings}
}

type NotificationTypeRequest struct {
	Type string `query:"type"`
}

func (r *NotificationTypeRequest) Validate() error {
	return nil
}

// UpdateOptionsRequest is the JSON array of options to upsert. The service
// validates each entry.
type UpdateOptionsRequest []model.NotificationSettingOption

func (r *UpdateOptionsRequest) Validate() error {
	return nil
}

type UpdateProvidersRequest []model.NotificationSettingProvider

func (r *UpdateProvidersRequest) Validate() error {
	return nil
}

func (h *NotificationHandler) ListOptions(c echo.Context, req *NotificationTypeRequest) ([]model.NotificationSettingOption, error) {
	return h.settings.ListOptions(c.Request().Context(), middleware.GetUserID(c), req.Type)
}

func (h *NotificationHandler) UpdateOptions(c echo.Context, req *UpdateOptionsRequest) ([]model.NotificationSettingOption, error) {
	return h.settings.UpdateOptions(c.Request().Context(), middleware.GetUserID(c), *req)
}

func (h *NotificationHandler) DeleteOption(c echo.Context, req *IDRequest) error {
	return h.settings.DeleteOption(c.Request().Context(), middleware.GetUserID(c), req.ID)
}

func (h *NotificationHandler) ListProviders(c echo.Context, req *NotificationTypeRequest) ([]model.NotificationSettingProvider, error) {
	return h.settings.ListProviders(c.Request().Context(), middleware.GetUserID(c), req.Type)
}

func (h *NotificationHandler) UpdateProviders(c echo.Context, req *UpdateProvidersRequest) ([]model.NotificationSettingProvider, error) {
	return h.settings.UpdateProviders(c.Request().Context(), middleware.GetUserID(c), *req)
}

func (h *NotificationHandler) DeleteProvider(c echo.Context, req *IDRequest) error {
	return h.settings.DeleteProvider(c.Request().Context(), middleware.GetUserID(c), req.ID)
}
