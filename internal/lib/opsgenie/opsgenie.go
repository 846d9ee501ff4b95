// Package opsgenie creates and closes OpsGenie alerts for issue groups.
package opsgenie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opsgenie/opsgenie-go-sdk-v2/alert"
	"github.com/opsgenie/opsgenie-go-sdk-v2/client"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

// maxMessageLength is OpsGenie's limit on the alert message.
const maxMessageLength = 130

// ErrPermanent marks responses that will fail the same way on retry.
var ErrPermanent = errors.New("opsgenie rejected the request")

type Responder struct {
	Type string
	ID   string
}

type Alert struct {
	Message     string
	Alias       string
	Description string
	Details     map[string]string
	Source      string
	Priority    string
	Responders  []Responder
}

type alertAPI interface {
	Create(ctx context.Context, req *alert.CreateAlertRequest) (*alert.AsyncAlertResult, error)
	Close(ctx context.Context, req *alert.CloseAlertRequest) (*alert.AsyncAlertResult, error)
}

// Client talks to the OpsGenie Alert API. Each call carries the team
// integration key it acts for; one SDK client is kept per key.
type Client struct {
	apiURL    client.ApiUrl
	logger    *logrus.Logger
	newAlerts func(cfg *client.Config) (alertAPI, error)

	mu      sync.Mutex
	clients map[string]alertAPI
}

// NewClient targets baseURL, e.g. https://api.eu.opsgenie.com. SDK logs at
// warn level and above are forwarded to logger.
func NewClient(baseURL string, logger *zerolog.Logger) *Client {
	sdkLogger := logrus.New()
	sdkLogger.SetLevel(logrus.WarnLevel)
	if logger != nil {
		sdkLogger.SetOutput(logger.With().Str("component", "opsgenie").Logger())
	}
	return &Client{
		apiURL:    apiHost(baseURL),
		logger:    sdkLogger,
		newAlerts: newSDKClient,
		clients:   make(map[string]alertAPI),
	}
}

func newSDKClient(cfg *client.Config) (alertAPI, error) {
	c, err := alert.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// apiHost reduces a configured URL to the bare host the SDK expects.
func apiHost(baseURL string) client.ApiUrl {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return client.API_URL
	}
	return client.ApiUrl(host)
}

func (c *Client) alerts(integrationKey string) (alertAPI, error) {
	if integrationKey == "" {
		return nil, fmt.Errorf("%w: integration key is empty", ErrPermanent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.clients[integrationKey]; ok {
		return a, nil
	}
	a, err := c.newAlerts(&client.Config{
		ApiKey:         integrationKey,
		OpsGenieAPIURL: c.apiURL,
		RequestTimeout: 15 * time.Second,
		RetryCount:     1,
		Logger:         c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	c.clients[integrationKey] = a
	return a, nil
}

// Alias is the stable alert alias for a group.
func Alias(groupID int64) string {
	return fmt.Sprintf("trackr-group-%d", groupID)
}

// Priority maps an event level onto P1..P5. An explicit override wins when
// it is a valid priority.
func Priority(level, override string) string {
	switch override {
	case "P1", "P2", "P3", "P4", "P5":
		return override
	}
	switch level {
	case "fatal":
		return "P1"
	case "error":
		return "P2"
	case "warning":
		return "P3"
	case "info":
		return "P4"
	}
	return "P5"
}

// Truncate shortens s to OpsGenie's message limit.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLength {
		return s
	}
	return string(r[:maxMessageLength-3]) + "..."
}

func (c *Client) CreateAlert(ctx context.Context, integrationKey string, a Alert) error {
	api, err := c.alerts(integrationKey)
	if err != nil {
		return err
	}

	responders := make([]alert.Responder, 0, len(a.Responders))
	for _, r := range a.Responders {
		responders = append(responders, alert.Responder{Type: alert.ResponderType(r.Type), Id: r.ID})
	}
	_, err = api.Create(ctx, &alert.CreateAlertRequest{
		Message:     Truncate(a.Message),
		Alias:       a.Alias,
		Description: a.Description,
		Details:     a.Details,
		Source:      a.Source,
		Priority:    alert.Priority(a.Priority),
		Responders:  responders,
	})
	return classify("create alert", err)
}

func (c *Client) CloseAlert(ctx context.Context, integrationKey, alias string) error {
	api, err := c.alerts(integrationKey)
	if err != nil {
		return err
	}
	_, err = api.Close(ctx, &alert.CloseAlertRequest{
		IdentifierType:  alert.ALIAS,
		IdentifierValue: alias,
		Source:          "Trackr",
	})
	return classify("close alert", err)
}

// classify marks rejections that a retry cannot fix as permanent.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *client.ApiError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s: %d %s", ErrPermanent, op, apiErr.StatusCode, apiErr.Message)
		}
	}
	return fmt.Errorf("opsgenie %s: %w", op, err)
}
