package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
)

type apiKeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*model.APIKey, error)
}

type AuthMiddleware struct {
	server *server.Server
	keys   apiKeyAuthenticator
}

func NewAuthMiddleware(s *server.Server, keys apiKeyAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{server: s, keys: keys}
}

// RequireAuth verifies the Clerk session token in the Authorization header
// and stores the caller's user id on the Echo context. Organization roles
// come from Trackr's own membership table, not from the token.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return echo.WrapMiddleware(
		clerkhttp.WithHeaderAuthorization(
			clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(auth.writeUnauthorized))))(
		func(c echo.Context) error {
			claims, ok := clerk.SessionClaimsFromContext(c.Request().Context())
			if !ok || claims.Subject == "" {
				auth.server.Logger.Warn().
					Str("function", "RequireAuth").
					Str("request_id", GetRequestID(c)).
					Msg("request without session claims")
				return errs.NewUnauthorizedError("Unauthorized", false)
			}

			c.Set(UserIDKey, claims.Subject)
			return next(c)
		})
}

// RequireAuthOrAPIKey accepts an organization API key ("Bearer trk_...")
// and falls back to RequireAuth for anything else.
func (auth *AuthMiddleware) RequireAuthOrAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	session := auth.RequireAuth(next)
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || !strings.HasPrefix(raw, model.APIKeyPrefix) {
			return session(c)
		}

		key, err := auth.keys.Authenticate(c.Request().Context(), raw)
		if err != nil {
			auth.server.Logger.Warn().
				Str("function", "RequireAuthOrAPIKey").
				Str("request_id", GetRequestID(c)).
				Msg("rejected api key")
			return err
		}
		c.Set(APIKeyKey, key)
		return next(c)
	}
}

// writeUnauthorized runs outside Echo, so it renders the error body itself.
func (auth *AuthMiddleware) writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(http.StatusUnauthorized)

	body := errs.NewUnauthorizedError("Authentication credentials were not provided or are invalid", true)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		auth.server.Logger.Error().
			Err(err).
			Str("function", "RequireAuth").
			Dur("duration", time.Since(start)).
			Msg("failed to write unauthorized response")
		return
	}

	auth.server.Logger.Warn().
		Str("function", "RequireAuth").
		Str("path", r.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("rejected unauthenticated request")
}
