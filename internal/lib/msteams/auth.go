package msteams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// BotFrameworkOpenIDURL publishes the keys Bot Framework signs channel
	// tokens with.
	BotFrameworkOpenIDURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	botFrameworkIssuer    = "https://api.botframework.com"

	keyRefreshInterval = 24 * time.Hour
	// An unknown kid forces a refetch at most this often.
	keyMissRefetch = 5 * time.Minute
	clockSkew      = 5 * time.Minute
	maxMetadata    = 1 << 20
)

var (
	ErrUnauthorized      = errors.New("bot framework token rejected")
	ErrServiceURLBlocked = errors.New("service url is not an allowed bot framework host")
)

type channelClaims struct {
	ServiceURL string `json:"serviceurl"`
	jwt.RegisteredClaims
}

// Authenticator verifies the bearer token Bot Framework attaches to every
// activity it posts to the bot.
type Authenticator struct {
	appID       string
	metadataURL string
	http        *http.Client
	now         func() time.Time

	mu      sync.Mutex
	keys    *jose.JSONWebKeySet
	fetched time.Time
}

func NewAuthenticator(appID, metadataURL string, client *http.Client) *Authenticator {
	if metadataURL == "" {
		metadataURL = BotFrameworkOpenIDURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Authenticator{appID: appID, metadataURL: metadataURL, http: client, now: time.Now}
}

// Verify checks the Authorization header of an inbound activity: an RS256
// token from Bot Framework, issued for this app, whose serviceurl claim
// matches the activity.
func (a *Authenticator) Verify(ctx context.Context, authorization, serviceURL string) error {
	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || raw == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if a.appID == "" {
		return fmt.Errorf("%w: no app id configured", ErrUnauthorized)
	}

	claims := &channelClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(botFrameworkIssuer),
		jwt.WithAudience(a.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.ServiceURL == "" || !sameServiceURL(claims.ServiceURL, serviceURL) {
		return fmt.Errorf("%w: serviceurl claim does not match the activity", ErrUnauthorized)
	}
	return nil
}

func (a *Authenticator) key(ctx context.Context, kid string) (any, error) {
	if kid == "" {
		return nil, errors.New("token has no kid")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	stale := a.keys == nil || now.Sub(a.fetched) > keyRefreshInterval
	if !stale && len(a.keys.Key(kid)) == 0 && now.Sub(a.fetched) > keyMissRefetch {
		stale = true
	}
	if stale {
		keys, err := a.fetchKeys(ctx)
		if err != nil {
			if a.keys == nil {
				return nil, err
			}
		} else {
			a.keys = keys
			a.fetched = now
		}
	}

	found := a.keys.Key(kid)
	if len(found) == 0 {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return found[0].Key, nil
}

func (a *Authenticator) fetchKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	var metadata struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := a.getJSON(ctx, a.metadataURL, &metadata); err != nil {
		return nil, fmt.Errorf("fetch openid metadata: %w", err)
	}
	if metadata.JWKSURI == "" {
		return nil, errors.New("openid metadata has no jwks_uri")
	}

	keys := &jose.JSONWebKeySet{}
	if err := a.getJSON(ctx, metadata.JWKSURI, keys); err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	return keys, nil
}

func (a *Authenticator) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", target, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxMetadata)).Decode(out)
}

func sameServiceURL(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(b, "/"))
}

// ServiceURLAllowed reports whether raw is an https URL on one of hosts.
// A host entry "*.example.com" matches every subdomain of example.com.
func ServiceURLAllowed(raw string, hosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if suffix, ok := strings.CutPrefix(h, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if h != "" && host == h {
			return true
		}
	}
	return false
}
