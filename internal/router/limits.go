package router

import (
	"net/http"

	"github.com/deppfellow/trackr/internal/lib/ratelimit"
)

func perSecond(limit, concurrent int) ratelimit.RateLimit {
	return ratelimit.RateLimit{Limit: limit, Window: 1, ConcurrentLimit: concurrent}
}

var (
	issueLimits = &ratelimit.RateLimitConfig{
		Group: "issues",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodGet: {
				ratelimit.CategoryUser: perSecond(40, 25),
			},
			http.MethodPut: {
				ratelimit.CategoryUser: perSecond(5, 5),
			},
			http.MethodPost: {
				ratelimit.CategoryUser: perSecond(5, 5),
			},
		},
	}

	eventLimits = &ratelimit.RateLimitConfig{
		Group: "events",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodPost: {
				ratelimit.CategoryUser:         perSecond(200, 50),
				ratelimit.CategoryOrganization: perSecond(1000, 100),
			},
		},
	}

	auditLogLimits = &ratelimit.RateLimitConfig{
		Group: "audit-logs",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodGet: {
				ratelimit.CategoryUser: {Limit: 10, Window: 10, ConcurrentLimit: 3},
			},
		},
	}

	webhookLimits = &ratelimit.RateLimitConfig{
		Group: "webhooks",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodPost: {
				ratelimit.CategoryIP: perSecond(100, 50),
			},
		},
	}

	identityLinkLimits = &ratelimit.RateLimitConfig{
		Group: "identity-link",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodPost: {
				ratelimit.CategoryUser: perSecond(5, 2),
			},
		},
	}

	pluginLimits = &ratelimit.RateLimitConfig{
		Group: "plugins",
		LimitOverrides: map[string]map[ratelimit.Category]ratelimit.RateLimit{
			http.MethodPut: {
				ratelimit.CategoryUser: {Limit: 5, Window: 60, ConcurrentLimit: 1},
			},
		},
	}
)
