package msteams

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAppID      = "app-1"
	testServiceURL = "https://smba.trafficmanager.net/amer/"
)

type botKeys struct {
	key     *rsa.PrivateKey
	srv     *httptest.Server
	fetches atomic.Int32
}

func newBotKeys(t *testing.T) *botKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	b := &botKeys{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/openid", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": b.srv.URL + "/keys"})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		b.fetches.Add(1)
		set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key: &key.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig",
		}}}
		_ = json.NewEncoder(w).Encode(set)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botKeys) token(t *testing.T, kid string, claims channelClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(b.key)
	require.NoError(t, err)
	return signed
}

func validClaims() channelClaims {
	return channelClaims{
		ServiceURL: testServiceURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    botFrameworkIssuer,
			Audience:  jwt.ClaimStrings{testAppID},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthenticator_Verify(t *testing.T) {
	keys := newBotKeys(t)
	auth := NewAuthenticator(testAppID, keys.srv.URL+"/openid", keys.srv.Client())
	ctx := context.Background()

	err := auth.Verify(ctx, "Bearer "+keys.token(t, "k1", validClaims()), testServiceURL)
	require.NoError(t, err)

	// Keys are cached between activities.
	err = auth.Verify(ctx, "Bearer "+keys.token(t, "k1", validClaims()), "https://smba.trafficmanager.net/amer")
	require.NoError(t, err)
	assert.Equal(t, int32(1), keys.fetches.Load())
}

func TestAuthenticator_Rejects(t *testing.T) {
	keys := newBotKeys(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}
	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://attacker.test"
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noServiceURL := validClaims()
	noServiceURL.ServiceURL = ""

	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	forged.Header["kid"] = "k1"
	forgedToken, err := forged.SignedString(other)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		serviceURL string
	}{
		{"no header", "", testServiceURL},
		{"not bearer", "Basic abc", testServiceURL},
		{"wrong audience", "Bearer " + keys.token(t, "k1", wrongAudience), testServiceURL},
		{"wrong issuer", "Bearer " + keys.token(t, "k1", wrongIssuer), testServiceURL},
		{"expired", "Bearer " + keys.token(t, "k1", expired), testServiceURL},
		{"unknown key", "Bearer " + keys.token(t, "k2", validClaims()), testServiceURL},
		{"foreign signature", "Bearer " + forgedToken, testServiceURL},
		{"missing serviceurl claim", "Bearer " + keys.token(t, "k1", noServiceURL), testServiceURL},
		{"redirected serviceUrl", "Bearer " + keys.token(t, "k1", validClaims()), "https://attacker.test/"},
	}

	auth := NewAuthenticator(testAppID, keys.srv.URL+"/openid", keys.srv.Client())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Verify(context.Background(), tt.header, tt.serviceURL)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestAuthenticator_NoAppID(t *testing.T) {
	keys := newBotKeys(t)
	auth := NewAuthenticator("", keys.srv.URL+"/openid", keys.srv.Client())
	err := auth.Verify(context.Background(), "Bearer "+keys.token(t, "k1", validClaims()), testServiceURL)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
