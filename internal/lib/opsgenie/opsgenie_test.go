package opsgenie

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/opsgenie/opsgenie-go-sdk-v2/alert"
	"github.com/opsgenie/opsgenie-go-sdk-v2/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlerts struct {
	key     string
	created []*alert.CreateAlertRequest
	closed  []*alert.CloseAlertRequest
	err     error
}

func (f *fakeAlerts) Create(_ context.Context, req *alert.CreateAlertRequest) (*alert.AsyncAlertResult, error) {
	f.created = append(f.created, req)
	return &alert.AsyncAlertResult{}, f.err
}

func (f *fakeAlerts) Close(_ context.Context, req *alert.CloseAlertRequest) (*alert.AsyncAlertResult, error) {
	f.closed = append(f.closed, req)
	return &alert.AsyncAlertResult{}, f.err
}

func newTestClient(baseURL string, err error) (*Client, map[string]*fakeAlerts, *[]*client.Config) {
	c := NewClient(baseURL, nil)
	fakes := map[string]*fakeAlerts{}
	var configs []*client.Config
	c.newAlerts = func(cfg *client.Config) (alertAPI, error) {
		configs = append(configs, cfg)
		f := &fakeAlerts{key: cfg.ApiKey, err: err}
		fakes[cfg.ApiKey] = f
		return f, nil
	}
	return c, fakes, &configs
}

func TestPriority(t *testing.T) {
	assert.Equal(t, "P1", Priority("fatal", ""))
	assert.Equal(t, "P2", Priority("error", ""))
	assert.Equal(t, "P3", Priority("warning", ""))
	assert.Equal(t, "P4", Priority("info", ""))
	assert.Equal(t, "P5", Priority("debug", ""))
	assert.Equal(t, "P3", Priority("fatal", "P3"))
	assert.Equal(t, "P2", Priority("error", "P9"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))
	long := strings.Repeat("é", 200)
	out := []rune(Truncate(long))
	assert.Len(t, out, maxMessageLength)
	assert.Equal(t, "...", string(out[len(out)-3:]))
}

func TestAPIHost(t *testing.T) {
	assert.Equal(t, client.ApiUrl("api.eu.opsgenie.com"), apiHost("https://api.eu.opsgenie.com/"))
	assert.Equal(t, client.API_URL, apiHost(""))
}

func TestCreateAlert(t *testing.T) {
	c, fakes, configs := newTestClient("https://api.eu.opsgenie.com", nil)

	err := c.CreateAlert(context.Background(), "key-1", Alert{
		Message:    strings.Repeat("x", 300),
		Alias:      Alias(12),
		Source:     "Trackr",
		Priority:   "P2",
		Details:    map[string]string{"level": "error"},
		Responders: []Responder{{Type: "team", ID: "team-1"}},
	})
	require.NoError(t, err)

	require.Len(t, *configs, 1)
	assert.Equal(t, "key-1", (*configs)[0].ApiKey)
	assert.Equal(t, client.ApiUrl("api.eu.opsgenie.com"), (*configs)[0].OpsGenieAPIURL)

	require.Len(t, fakes["key-1"].created, 1)
	got := fakes["key-1"].created[0]
	assert.Equal(t, "trackr-group-12", got.Alias)
	assert.Len(t, got.Message, maxMessageLength)
	assert.Equal(t, alert.P2, got.Priority)
	assert.Equal(t, []alert.Responder{{Type: alert.TeamResponder, Id: "team-1"}}, got.Responders)
	assert.Equal(t, map[string]string{"level": "error"}, got.Details)
}

func TestCloseAlert(t *testing.T) {
	c, fakes, _ := newTestClient("", nil)

	require.NoError(t, c.CloseAlert(context.Background(), "k", Alias(5)))
	require.Len(t, fakes["k"].closed, 1)
	assert.Equal(t, alert.ALIAS, fakes["k"].closed[0].IdentifierType)
	assert.Equal(t, "trackr-group-5", fakes["k"].closed[0].IdentifierValue)
}

func TestClientPerIntegrationKey(t *testing.T) {
	c, fakes, configs := newTestClient("", nil)
	ctx := context.Background()

	require.NoError(t, c.CloseAlert(ctx, "a", Alias(1)))
	require.NoError(t, c.CloseAlert(ctx, "a", Alias(2)))
	require.NoError(t, c.CloseAlert(ctx, "b", Alias(3)))

	assert.Len(t, *configs, 2)
	assert.Len(t, fakes["a"].closed, 2)
	assert.Len(t, fakes["b"].closed, 1)

	err := c.CloseAlert(ctx, "", Alias(4))
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestPermanentErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity} {
		c, _, _ := newTestClient("", &client.ApiError{StatusCode: status, Message: "rejected"})
		err := c.CreateAlert(context.Background(), "k", Alert{Message: "m"})
		assert.ErrorIs(t, err, ErrPermanent, status)
	}

	c, _, _ := newTestClient("", errors.New("connection reset"))
	err := c.CreateAlert(context.Background(), "k", Alert{Message: "m"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanent)
}
