package middleware

import (
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/deppfellow/trackr/internal/lib/ratelimit"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
)

// Middlewares groups every middleware so the router receives one value.
type Middlewares struct {
	Global          *GlobalMiddlewares
	Auth            *AuthMiddleware
	ContextEnhancer *ContextEnhancer
	Tracing         *TracingMiddleware
	RateLimit       *RateLimitMiddleware
	Tenancy         *TenancyMiddleware
	Silo            *SiloMiddleware
}

func NewMiddlewares(s *server.Server, services *service.Services) *Middlewares {
	var nrApp *newrelic.Application
	if s.LoggerService != nil {
		nrApp = s.LoggerService.GetApplication()
	}

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisStore(s.Redis),
		ratelimit.DefaultsFromConfig(s.Config.RateLimit),
		s.Config.RateLimit.ConcurrentTimeout,
	)

	return &Middlewares{
		Global:          NewGlobalMiddlewares(s),
		Auth:            NewAuthMiddleware(s, services.APIKey),
		ContextEnhancer: NewContextEnhancer(s),
		Tracing:         NewTracingMiddleware(s, nrApp),
		RateLimit:       NewRateLimitMiddleware(s, limiter),
		Tenancy:         NewTenancyMiddleware(services.Tenancy),
		Silo:            NewSiloMiddleware(s.Config.Primary.SiloModeOrDefault()),
	}
}
