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

type auditLogLister interface {
	List(ctx context.Context, orgID int64, role model.Role, q service.AuditLogQuery) (*model.AuditLogPage, error)
}

type AuditLogHandler struct {
	Handler
	audit auditLogLister
}

func NewAuditLogHandler(s *server.Server, audit auditLogLister) *AuditLogHandler {
	return &AuditLogHandler{Handler: NewHandler(s), audit: audit}
}

type ListAuditLogRequest struct {
	Event   string `query:"event"`
	Actor   string `query:"actor"`
	Cursor  int64  `query:"cursor" validate:"min=0"`
	PerPage int    `query:"per_page" validate:"min=0,max=1000"`
}

func (r *ListAuditLogRequest) Validate() error {
	return validation.Struct(r)
}

func (h *AuditLogHandler) List(c echo.Context, req *ListAuditLogRequest) (*model.AuditLogPage, error) {
	org := middleware.GetOrganization(c)
	actor := middleware.GetActor(c)
	return h.audit.List(c.Request().Context(), org.ID, actor.Role, service.AuditLogQuery{
		Event:   req.Event,
		ActorID: req.Actor,
		Cursor:  req.Cursor,
		PerPage: req.PerPage,
	})
}
