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

type eventIngester interface {
	Ingest(ctx context.Context, org *model.Organization, project *model.Project, req service.IngestEvent) (*model.IngestResult, error)
}

type EventHandler struct {
	Handler
	events eventIngester
}

func NewEventHandler(s *server.Server, events eventIngester) *EventHandler {
	return &EventHandler{Handler: NewHandler(s), events: events}
}

type StoreEventRequest struct {
	Message   string `json:"message" validate:"max=8192"`
	Level     string `json:"level"`
	Platform  string `json:"platform" validate:"max=64"`
	Culprit   string `json:"culprit" validate:"max=200"`
	Exception *struct {
		Type  string `json:"type" validate:"max=128"`
		Value string `json:"value" validate:"max=4096"`
	} `json:"exception"`
	Fingerprint []string          `json:"fingerprint" validate:"max=32"`
	Tags        map[string]string `json:"tags"`
	Release     string            `json:"release" validate:"max=250"`
	Environment string            `json:"environment" validate:"max=64"`
}

func (r *StoreEventRequest) Validate() error {
	return validation.Struct(r)
}

// Store ingests one event into the project named in the path.
func (h *EventHandler) Store(c echo.Context, req *StoreEventRequest) (*model.IngestResult, error) {
	in := service.IngestEvent{
		Message:     req.Message,
		Level:       req.Level,
		Platform:    req.Platform,
		Culprit:     req.Culprit,
		Fingerprint: req.Fingerprint,
		Tags:        req.Tags,
		Release:     req.Release,
		Environment: req.Environment,
	}
	if req.Exception != nil {
		in.ExceptionType = req.Exception.Type
		in.ExceptionValue = req.Exception.Value
	}
	return h.events.Ingest(c.Request().Context(), middleware.GetOrganization(c), middleware.GetProject(c), in)
}
