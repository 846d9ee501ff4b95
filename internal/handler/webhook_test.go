package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/provider"
	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
)

type mockPushes struct {
	mock.Mock
}

func (m *mockPushes) ReceivePush(ctx context.Context, push *provider.Push, opts service.PushOptions) (int, error) {
	args := m.Called(ctx, push, opts)
	return args.Int(0), args.Error(1)
}

type staticOrgs struct{}

func (staticOrgs) GetOrganization(_ context.Context, slug string) (*model.Organization, error) {
	if slug != testOrg.Slug {
		return nil, errs.NewNotFoundError("Organization not found", true, nil)
	}
	return testOrg, nil
}

const githubSecret = "gh-s3cret"

func newWebhookHandler(t *testing.T, pushes pushReceiver) *WebhookHandler {
	return newWebhookHandlerWithSecret(t, pushes, githubSecret)
}

func newWebhookHandlerWithSecret(t *testing.T, pushes pushReceiver, secret string) *WebhookHandler {
	t.Helper()
	github, err := provider.NewGitHubWebhook(secret)
	require.NoError(t, err)
	bitbucket, err := provider.NewBitbucketWebhook([]string{"104.192.136.0/21"})
	require.NoError(t, err)
	return NewWebhookHandler(testServer(), pushes, staticOrgs{}, github, bitbucket)
}

func githubSignature(secret, body string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

// deliver sends body from peer the way the router does: the client address
// is the TCP peer unless a trusted proxy is configured.
func deliver(s *server.Server, route, target, body, peer string, headers map[string]string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	global := middleware.NewGlobalMiddlewares(s)
	e := echo.New()
	e.HTTPErrorHandler = global.GlobalErrorHandler
	e.IPExtractor = global.IPExtractor()
	e.POST(route, fn)

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.RemoteAddr = peer + ":40123"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGitHubWebhook_IgnoresOtherEvents(t *testing.T) {
	pushes := &mockPushes{}
	h := newWebhookHandler(t, pushes)

	rec := deliver(h.server, "/extensions/github/webhook/", "/extensions/github/webhook/", `{}`, "140.82.112.1",
		map[string]string{"X-GitHub-Event": "ping", "X-Hub-Signature": githubSignature(githubSecret, `{}`)}, h.GitHub)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	pushes.AssertNotCalled(t, "ReceivePush", mock.Anything, mock.Anything, mock.Anything)
}

func TestGitHubWebhook_RequiresSecret(t *testing.T) {
	body := `{"repository":{"id":1},"commits":[]}`

	t.Run("unsigned push", func(t *testing.T) {
		pushes := &mockPushes{}
		h := newWebhookHandler(t, pushes)
		rec := deliver(h.server, "/extensions/github/webhook/", "/extensions/github/webhook/", body, "140.82.112.1",
			map[string]string{"X-GitHub-Event": "push"}, h.GitHub)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		pushes.AssertNotCalled(t, "ReceivePush", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no secret configured", func(t *testing.T) {
		pushes := &mockPushes{}
		h := newWebhookHandlerWithSecret(t, pushes, "")
		rec := deliver(h.server, "/extensions/github/webhook/", "/extensions/github/webhook/", body, "140.82.112.1",
			map[string]string{"X-GitHub-Event": "push", "X-Hub-Signature": githubSignature("", body)}, h.GitHub)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		pushes.AssertNotCalled(t, "ReceivePush", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBitbucketWebhook(t *testing.T) {
	route := "/extensions/bitbucket/organizations/:org/webhook/"
	target := "/extensions/bitbucket/organizations/acme/webhook/"
	body := `{"repository":{"uuid":"{b1}"},"push":{"changes":[]}}`

	t.Run("outside allowed ranges", func(t *testing.T) {
		h := newWebhookHandler(t, &mockPushes{})
		rec := deliver(h.server, route, target, body, "198.51.100.7", map[string]string{
			"X-Event-Key": "repo:push",
		}, h.Bitbucket)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("forwarded-for from an untrusted peer is ignored", func(t *testing.T) {
		pushes := &mockPushes{}
		h := newWebhookHandler(t, pushes)
		rec := deliver(h.server, route, target, body, "198.51.100.7", map[string]string{
			"X-Forwarded-For": "104.192.136.10",
			"X-Real-IP":       "104.192.136.10",
			"X-Event-Key":     "repo:push",
		}, h.Bitbucket)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		pushes.AssertNotCalled(t, "ReceivePush", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("push scoped to organization", func(t *testing.T) {
		pushes := &mockPushes{}
		pushes.On("ReceivePush", mock.Anything,
			mock.MatchedBy(func(p *provider.Push) bool { return p.ExternalID == "{b1}" }),
			service.PushOptions{OrganizationID: testOrg.ID}).Return(0, nil)
		h := newWebhookHandler(t, pushes)

		rec := deliver(h.server, route, target, body, "104.192.136.10", map[string]string{
			"X-Event-Key": "repo:push",
		}, h.Bitbucket)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		pushes.AssertExpectations(t)
	})

	t.Run("unknown organization", func(t *testing.T) {
		h := newWebhookHandler(t, &mockPushes{})
		rec := deliver(h.server, route, "/extensions/bitbucket/organizations/nope/webhook/", body, "104.192.136.10", map[string]string{
			"X-Event-Key": "repo:push",
		}, h.Bitbucket)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestVSTSWebhook(t *testing.T) {
	body := `{"eventType":"git.push","resource":{"repository":{"id":"r1"},"commits":[]}}`

	t.Run("missing secret", func(t *testing.T) {
		h := newWebhookHandler(t, &mockPushes{})
		rec := deliver(h.server, "/extensions/vsts/webhook/", "/extensions/vsts/webhook/", body, "13.107.6.1", nil, h.VSTS)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("secret passed to the push receiver", func(t *testing.T) {
		pushes := &mockPushes{}
		pushes.On("ReceivePush", mock.Anything, mock.Anything,
			mock.MatchedBy(func(o service.PushOptions) bool {
				return o.SharedSecret != nil && *o.SharedSecret == "s3cret"
			})).Return(0, errs.NewUnauthorizedError("Invalid shared secret", true))
		h := newWebhookHandler(t, pushes)

		rec := deliver(h.server, "/extensions/vsts/webhook/", "/extensions/vsts/webhook/", body, "13.107.6.1",
			map[string]string{VSTSSecretHeader: "s3cret"}, h.VSTS)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		pushes.AssertExpectations(t)
	})

	t.Run("bad payload", func(t *testing.T) {
		h := newWebhookHandler(t, &mockPushes{})
		rec := deliver(h.server, "/extensions/vsts/webhook/", "/extensions/vsts/webhook/", `{"eventType":`, "13.107.6.1",
			map[string]string{VSTSSecretHeader: "s3cret"}, h.VSTS)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
