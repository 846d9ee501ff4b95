// Package router builds the Echo instance: global middleware, then one
// route group per resource, each tagged with the silo it belongs to.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/handler"
	"github.com/deppfellow/trackr/internal/lib/ratelimit"
	"github.com/deppfellow/trackr/internal/middleware"
)

type routes struct {
	e  *echo.Echo
	h  *handler.Handlers
	mw *middleware.Middlewares
}

func NewRouter(h *handler.Handlers, mw *middleware.Middlewares) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = mw.Global.GlobalErrorHandler
	e.IPExtractor = mw.Global.IPExtractor()

	e.Use(
		middleware.RequestID(),
		mw.Tracing.NewRelicMiddleware(),
		mw.Tracing.EnhanceTracing(),
		mw.Global.CORS(),
		mw.Global.Secure(),
		mw.ContextEnhancer.EnhanceContext(),
		mw.Global.RequestLogger(),
		mw.Global.Recover(),
	)

	r := &routes{e: e, h: h, mw: mw}
	r.registerSystemRoutes()
	r.registerControlRoutes()
	r.registerRegionRoutes()
	return e
}

// public is a group for unauthenticated callers such as webhooks.
func (r *routes) public(prefix string, silo middleware.SiloMode, limits *ratelimit.RateLimitConfig) *echo.Group {
	return r.e.Group(prefix,
		r.mw.Silo.Limit(silo),
		r.mw.RateLimit.Limit(limits),
	)
}

// user is a group for authenticated callers outside any organization.
func (r *routes) user(prefix string, silo middleware.SiloMode, limits *ratelimit.RateLimitConfig) *echo.Group {
	return r.e.Group(prefix,
		r.mw.Silo.Limit(silo),
		r.mw.Auth.RequireAuth,
		r.mw.ContextEnhancer.EnhanceContext(),
		r.mw.RateLimit.Limit(limits),
	)
}

// organization is a group under /api/0/organizations/:org that resolves the
// organization for the caller.
func (r *routes) organization(prefix string, silo middleware.SiloMode, limits *ratelimit.RateLimitConfig) *echo.Group {
	return r.e.Group("/api/0/organizations/:org"+prefix,
		r.mw.Silo.Limit(silo),
		r.mw.Auth.RequireAuth,
		r.mw.ContextEnhancer.EnhanceContext(),
		r.mw.RateLimit.Limit(limits),
		r.mw.Tenancy.Organization,
	)
}

// project is a group under /api/0/projects/:org/:project.
func (r *routes) project(prefix string, silo middleware.SiloMode, limits *ratelimit.RateLimitConfig) *echo.Group {
	return r.e.Group("/api/0/projects/:org/:project"+prefix,
		r.mw.Silo.Limit(silo),
		r.mw.Auth.RequireAuth,
		r.mw.ContextEnhancer.EnhanceContext(),
		r.mw.RateLimit.Limit(limits),
		r.mw.Tenancy.Organization,
		r.mw.Tenancy.Project,
	)
}

// ingest is a project group that also accepts organization API keys.
func (r *routes) ingest(prefix string, silo middleware.SiloMode, limits *ratelimit.RateLimitConfig) *echo.Group {
	return r.e.Group("/api/0/projects/:org/:project"+prefix,
		r.mw.Silo.Limit(silo),
		r.mw.Auth.RequireAuthOrAPIKey,
		r.mw.ContextEnhancer.EnhanceContext(),
		r.mw.RateLimit.Limit(limits),
		r.mw.Tenancy.Organization,
		r.mw.Tenancy.Project,
	)
}
