package router

import (
	"net/http"

	"github.com/deppfellow/trackr/internal/handler"
	"github.com/deppfellow/trackr/internal/middleware"
)

// registerControlRoutes mounts user settings, integrations, API keys, MS
// Teams and the audit log.
func (r *routes) registerControlRoutes() {
	h := r.h

	me := r.user("/api/0/users/me", middleware.SiloControl, nil)
	me.GET("/notification-options/", handler.Handle(h.Notification.Handler, h.Notification.ListOptions, http.StatusOK, &handler.NotificationTypeRequest{}))
	me.PUT("/notification-options/", handler.Handle(h.Notification.Handler, h.Notification.UpdateOptions, http.StatusOK, &handler.UpdateOptionsRequest{}))
	me.DELETE("/notification-options/:id/", handler.HandleNoContent(h.Notification.Handler, h.Notification.DeleteOption, http.StatusNoContent, &handler.IDRequest{}))
	me.GET("/notification-providers/", handler.Handle(h.Notification.Handler, h.Notification.ListProviders, http.StatusOK, &handler.NotificationTypeRequest{}))
	me.PUT("/notification-providers/", handler.Handle(h.Notification.Handler, h.Notification.UpdateProviders, http.StatusOK, &handler.UpdateProvidersRequest{}))
	me.DELETE("/notification-providers/:id/", handler.HandleNoContent(h.Notification.Handler, h.Notification.DeleteProvider, http.StatusNoContent, &handler.IDRequest{}))

	integrations := r.organization("/integrations", middleware.SiloControl, nil)
	integrations.GET("/", handler.Handle(h.Integration.Handler, h.Integration.List, http.StatusOK, &handler.EmptyRequest{}))
	integrations.POST("/", handler.Handle(h.Integration.Handler, h.Integration.Install, http.StatusCreated, &handler.InstallIntegrationRequest{}))
	integrations.PUT("/:id/", handler.Handle(h.Integration.Handler, h.Integration.Update, http.StatusOK, &handler.UpdateIntegrationRequest{}))
	integrations.DELETE("/:id/", handler.HandleNoContent(h.Integration.Handler, h.Integration.Uninstall, http.StatusNoContent, &handler.IDRequest{}))

	keys := r.organization("/api-keys", middleware.SiloControl, nil)
	keys.GET("/", handler.Handle(h.APIKey.Handler, h.APIKey.List, http.StatusOK, &handler.EmptyRequest{}))
	keys.POST("/", handler.Handle(h.APIKey.Handler, h.APIKey.Create, http.StatusCreated, &handler.CreateAPIKeyRequest{}))
	keys.DELETE("/:id/", handler.HandleNoContent(h.APIKey.Handler, h.APIKey.Revoke, http.StatusNoContent, &handler.IDRequest{}))

	audit := r.organization("/audit-logs", middleware.SiloControl, auditLogLimits)
	audit.GET("/", handler.Handle(h.AuditLog.Handler, h.AuditLog.List, http.StatusOK, &handler.ListAuditLogRequest{}))

	if h.MSTeams == nil {
		return
	}

	// Bot Framework calls the webhook without a Clerk session.
	bot := r.public("/extensions/msteams", middleware.SiloControl, webhookLimits)
	bot.POST("/webhook/", handler.HandleNoContent(h.MSTeams.Handler, h.MSTeams.Webhook, http.StatusCreated, &handler.ActivityRequest{}))

	links := r.user("/extensions/msteams", middleware.SiloControl, identityLinkLimits)
	links.GET("/link-identity/:signed_params/", handler.Handle(h.MSTeams.Handler, h.MSTeams.GetLink, http.StatusOK, &handler.SignedParamsRequest{}))
	links.POST("/link-identity/:signed_params/", handler.Handle(h.MSTeams.Handler, h.MSTeams.Link, http.StatusOK, &handler.SignedParamsRequest{}))
	links.GET("/unlink-identity/:signed_params/", handler.Handle(h.MSTeams.Handler, h.MSTeams.GetLink, http.StatusOK, &handler.SignedParamsRequest{}))
	links.POST("/unlink-identity/:signed_params/", handler.HandleNoContent(h.MSTeams.Handler, h.MSTeams.Unlink, http.StatusNoContent, &handler.SignedParamsRequest{}))
}
