package msteams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const botFrameworkScope = "https://api.botframework.com/.default"

// ErrPermanent marks replies that must not be retried.
var ErrPermanent = errors.New("msteams reply rejected")

// DefaultServiceHosts are the Bot Framework channel hosts replies may be
// posted to.
var DefaultServiceHosts = []string{"smba.trafficmanager.net", "*.botframework.com"}

// Client posts replies to Bot Framework conversations, authenticated with an
// app client-credentials token. Replies only go to serviceHosts, so the
// token never leaves Bot Framework.
type Client struct {
	http         *http.Client
	serviceHosts []string
}

func NewClient(appID, appPassword, tokenURL string, serviceHosts []string) *Client {
	cfg := clientcredentials.Config{
		ClientID:     appID,
		ClientSecret: appPassword,
		TokenURL:     tokenURL,
		Scopes:       []string{botFrameworkScope},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 10 * time.Second})
	httpClient := cfg.Client(ctx)
	httpClient.Timeout = 15 * time.Second
	return &Client{http: httpClient, serviceHosts: serviceHosts}
}

// NewClientWithHTTP uses an already authenticated client.
func NewClientWithHTTP(c *http.Client, serviceHosts []string) *Client {
	return &Client{http: c, serviceHosts: serviceHosts}
}

// Send posts activity to conversationID on serviceURL.
func (c *Client) Send(ctx context.Context, serviceURL, conversationID string, activity json.RawMessage) error {
	if serviceURL == "" || conversationID == "" {
		return fmt.Errorf("%w: service url and conversation id are required", ErrPermanent)
	}
	if !ServiceURLAllowed(serviceURL, c.serviceHosts) {
		return fmt.Errorf("%w: %w", ErrPermanent, ErrServiceURLBlocked)
	}
	endpoint := strings.TrimSuffix(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(activity))
	if err != nil {
		return fmt.Errorf("build reply: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("bot framework returned %d: %s", resp.StatusCode, body)
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}
