// Package handler is the HTTP layer: it binds and validates requests, calls
// the services and writes responses.
package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/provider"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
	"github.com/deppfellow/trackr/internal/validation"
)

type Handlers struct {
	Health       *HealthHandler
	Metrics      *MetricsHandler
	Issue        *IssueHandler
	APIKey       *APIKeyHandler
	Event        *EventHandler
	AuditLog     *AuditLogHandler
	Onboarding   *OnboardingHandler
	SavedSearch  *SavedSearchHandler
	SourceCode   *SourceCodeHandler
	Webhook      *WebhookHandler
	Integration  *IntegrationHandler
	// MSTeams is nil when the bot is not configured.
	MSTeams      *MSTeamsHandler
	Notification *NotificationHandler
	Plugin       *PluginHandler
}

func NewHandlers(s *server.Server, services *service.Services) (*Handlers, error) {
	github, err := provider.NewGitHubWebhook(s.Config.Integration.GitHubWebhookSecret)
	if err != nil {
		return nil, err
	}
	bitbucket, err := provider.NewBitbucketWebhook(s.Config.Integration.BitbucketIPRanges)
	if err != nil {
		return nil, err
	}

	var teams *MSTeamsHandler
	if services.MSTeams != nil {
		teams = NewMSTeamsHandler(s, services.MSTeams, services.MSTeamsAuth)
	}

	return &Handlers{
		Health:       NewHealthHandler(s),
		Metrics:      NewMetricsHandler(s),
		Issue:        NewIssueHandler(s, services.Group),
		APIKey:       NewAPIKeyHandler(s, services.APIKey),
		Event:        NewEventHandler(s, services.Event),
		AuditLog:     NewAuditLogHandler(s, services.AuditLog),
		Onboarding:   NewOnboardingHandler(s, services.Onboarding),
		SavedSearch:  NewSavedSearchHandler(s, services.SavedSearch),
		SourceCode:   NewSourceCodeHandler(s, services.SourceCode),
		Webhook:      NewWebhookHandler(s, services.SourceCode, services.Tenancy, github, bitbucket),
		Integration:  NewIntegrationHandler(s, services.Integration),
		MSTeams:      teams,
		Notification: NewNotificationHandler(s, services.Notification),
		Plugin:       NewPluginHandler(s, services.Plugin),
	}, nil
}

// EmptyRequest is bound by endpoints that take nothing but the path.
type EmptyRequest struct{}

func (r *EmptyRequest) Validate() error {
	return nil
}

// IDRequest carries a numeric :id path parameter.
type IDRequest struct {
	ID int64 `param:"id" validate:"required,min=1"`
}

func (r *IDRequest) Validate() error {
	return validation.Struct(r)
}

// queryIDs reads every repeated ?name= value as an int64.
func queryIDs(c echo.Context, name string) ([]int64, error) {
	raw := c.QueryParams()[name]
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, errs.NewBadRequestError(fmt.Sprintf("Invalid %s: %s", name, v), true, nil,
				[]errs.FieldError{{Field: name, Error: "must be a positive integer"}}, nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
