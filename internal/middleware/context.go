package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/logger"
	"github.com/deppfellow/trackr/internal/model"
	"github.com/deppfellow/trackr/internal/server"
)

// Echo context keys.
const (
	UserIDKey       = "user_id"
	LoggerKey       = "logger"
	OrganizationKey = "organization"
	MemberKey       = "member"
	ProjectKey      = "project"
	APIKeyKey       = "api_key"
)

// ContextEnhancer builds the request-scoped logger.
type ContextEnhancer struct {
	server *server.Server
}

func NewContextEnhancer(s *server.Server) *ContextEnhancer {
	return &ContextEnhancer{server: s}
}

// EnhanceContext stores a child logger carrying request_id, method, path,
// ip, trace ids and the user id on both the Echo context and the request
// context, where zerolog.Ctx finds it. It must run after RequireAuth to
// pick up the user.
func (ce *ContextEnhancer) EnhanceContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			contextLogger := ce.server.Logger.With().
				Str("request_id", GetRequestID(c)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("ip", c.RealIP()).
				Logger()

			if txn := newrelic.FromContext(c.Request().Context()); txn != nil {
				contextLogger = logger.WithTraceContext(contextLogger, txn)
			}
			if userID := GetUserID(c); userID != "" {
				contextLogger = contextLogger.With().Str("user_id", userID).Logger()
			}
			if key := GetAPIKey(c); key != nil {
				contextLogger = contextLogger.With().Int64("api_key_id", key.ID).Logger()
			}

			c.Set(LoggerKey, &contextLogger)
			c.SetRequest(c.Request().WithContext(contextLogger.WithContext(c.Request().Context())))
			return next(c)
		}
	}
}

func GetUserID(c echo.Context) string {
	if userID, ok := c.Get(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetLogger returns the request logger, or a no-op logger when
// EnhanceContext did not run.
func GetLogger(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get(LoggerKey).(*zerolog.Logger); ok {
		return l
	}
	l := zerolog.Nop()
	return &l
}

// GetAPIKey returns the API key the request authenticated with, if any.
func GetAPIKey(c echo.Context) *model.APIKey {
	key, _ := c.Get(APIKeyKey).(*model.APIKey)
	return key
}

func GetOrganization(c echo.Context) *model.Organization {
	org, _ := c.Get(OrganizationKey).(*model.Organization)
	return org
}

func GetProject(c echo.Context) *model.Project {
	project, _ := c.Get(ProjectKey).(*model.Project)
	return project
}

// GetActor describes the caller for permission checks and audit entries.
// The role is empty outside organization routes.
func GetActor(c echo.Context) model.Actor {
	actor := model.Actor{
		UserID:    GetUserID(c),
		IPAddress: c.RealIP(),
	}
	actor.Label = actor.UserID
	if key := GetAPIKey(c); key != nil {
		actor.APIKey = key.Hint
		actor.Label = key.Label
	}
	if member, ok := c.Get(MemberKey).(*model.Member); ok && member != nil {
		actor.Role = member.Role
		if member.Email != "" {
			actor.Label = member.Email
		}
	}
	return actor
}
