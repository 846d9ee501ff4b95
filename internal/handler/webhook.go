package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/provider"
	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
)

// VSTSSecretHeader carries the shared secret of an Azure DevOps service hook.
const VSTSSecretHeader = "Shared-Secret"

type pushReceiver interface {
	ReceivePush(ctx context.Context, push *provider.Push, opts service.PushOptions) (int, error)
}

type organizationLookup interface {
	GetOrganization(ctx context.Context, slug string) (*model.Organization, error)
}

type pushParser interface {
	Parse(r *http.Request) (*provider.Push, error)
}

type bitbucketParser interface {
	pushParser
	Allowed(ip string) bool
}

// WebhookHandler receives push deliveries from repository providers. The
// endpoints read the raw body, so they do not go through Handle.
type WebhookHandler struct {
	Handler
	pushes    pushReceiver
	orgs      organizationLookup
	github    pushParser
	bitbucket bitbucketParser
	vsts      func(r *http.Request) (*provider.Push, error)
}

func NewWebhookHandler(s *server.Server, pushes pushReceiver, orgs organizationLookup, github pushParser, bitbucket bitbucketParser) *WebhookHandler {
	return &WebhookHandler{
		Handler:   NewHandler(s),
		pushes:    pushes,
		orgs:      orgs,
		github:    github,
		bitbucket: bitbucket,
		vsts:      provider.ParseVSTS,
	}
}

func (h *WebhookHandler) GitHub(c echo.Context) error {
	push, err := h.github.Parse(c.Request())
	if err != nil {
		return h.parseError(c, model.ProviderGitHub, err)
	}
	return h.receive(c, push, service.PushOptions{})
}

// Bitbucket accepts deliveries for one organization from Bitbucket's
// address ranges only.
func (h *WebhookHandler) Bitbucket(c echo.Context) error {
	if !h.bitbucket.Allowed(c.RealIP()) {
		h.server.Metrics.WebhookDeliveries.WithLabelValues(model.ProviderBitbucket, metrics.OutcomeFailure).Inc()
		return errs.NewUnauthorizedError("Webhook source address is not allowed", true)
	}
	org, err := h.orgs.GetOrganization(c.Request().Context(), c.Param("org"))
	if err != nil {
		return err
	}
	push, err := h.bitbucket.Parse(c.Request())
	if err != nil {
		return h.parseError(c, model.ProviderBitbucket, err)
	}
	return h.receive(c, push, service.PushOptions{OrganizationID: org.ID})
}

// VSTS accepts git.push service hooks carrying the integration's shared
// secret.
func (h *WebhookHandler) VSTS(c echo.Context) error {
	secret := c.Request().Header.Get(VSTSSecretHeader)
	if secret == "" {
		h.server.Metrics.WebhookDeliveries.WithLabelValues(model.ProviderVSTS, metrics.OutcomeFailure).Inc()
		return errs.NewUnauthorizedError("Missing shared secret", true)
	}
	push, err := h.vsts(c.Request())
	if err != nil {
		return h.parseError(c, model.ProviderVSTS, err)
	}
	return h.receive(c, push, service.PushOptions{SharedSecret: &secret})
}

func (h *WebhookHandler) receive(c echo.Context, push *provider.Push, opts service.PushOptions) error {
	stored, err := h.pushes.ReceivePush(c.Request().Context(), push, opts)
	if err != nil {
		return err
	}
	middleware.GetLogger(c).Info().
		Str("provider", push.Provider).
		Str("external_id", push.ExternalID).
		Int("commits", stored).
		Msg("push received")
	return c.NoContent(http.StatusNoContent)
}

func (h *WebhookHandler) parseError(c echo.Context, providerID string, err error) error {
	switch {
	case errors.Is(err, provider.ErrIgnoredEvent):
		h.server.Metrics.WebhookDeliveries.WithLabelValues(providerID, metrics.OutcomeIgnored).Inc()
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, provider.ErrBadSignature):
		h.server.Metrics.WebhookDeliveries.WithLabelValues(providerID, metrics.OutcomeFailure).Inc()
		return errs.NewUnauthorizedError("Invalid webhook signature", true)
	case errors.Is(err, provider.ErrBadPayload):
		h.server.Metrics.WebhookDeliveries.WithLabelValues(providerID, metrics.OutcomeFailure).Inc()
		return errs.NewBadRequestError("Invalid webhook payload", true, nil, nil, nil)
	default:
		return err
	}
}
