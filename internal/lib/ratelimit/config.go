// Package ratelimit enforces per-endpoint request budgets.
//
// Every route may declare a RateLimitConfig. A request is charged against a
// fixed window counter keyed by route, method and caller, and holds a
// concurrency slot while it is in flight. Counters live in Redis so limits
// hold across API replicas.
package ratelimit

import (
	"strings"

	"github.com/deppfellow/trackr/internal/config"
)

// Category is who a request is charged to.
type Category string

const (
	CategoryIP           Category = "ip"
	CategoryUser         Category = "user"
	CategoryOrganization Category = "organization"
)

// RateLimit is the budget of one category on one method.
type RateLimit struct {
	Limit           int `json:"limit"`
	Window          int `json:"window"`
	ConcurrentLimit int `json:"concurrent_limit"`
}

// DefaultGroup is the group of routes that do not name one.
const DefaultGroup = "default"

// RateLimitConfig is attached to a route at registration time.
type RateLimitConfig struct {
	Group string
	// LimitOverrides maps HTTP method to per-category limits.
	LimitOverrides map[string]map[Category]RateLimit
}

// Defaults are the budgets used when a route's config is silent.
type Defaults struct {
	// Groups holds per-group fallbacks, checked before Global.
	Groups map[string]map[Category]RateLimit
	Global map[Category]RateLimit
}

// DefaultsFromConfig builds the global defaults from configuration. Every
// category gets the same budget.
func DefaultsFromConfig(cfg *config.RateLimitConfig) Defaults {
	window := int(cfg.DefaultWindow.Seconds())
	if window < 1 {
		window = 1
	}
	limit := RateLimit{Limit: cfg.DefaultLimit, Window: window, ConcurrentLimit: cfg.ConcurrentLimit}
	return Defaults{
		Groups: map[string]map[Category]RateLimit{},
		Global: map[Category]RateLimit{
			CategoryIP:           limit,
			CategoryUser:         limit,
			CategoryOrganization: limit,
		},
	}
}

// GroupName returns the configured group or DefaultGroup.
func (c *RateLimitConfig) GroupName() string {
	if c == nil || c.Group == "" {
		return DefaultGroup
	}
	return c.Group
}

// Resolve picks the budget for method and category: the route override,
// then the group default, then the global default.
func (c *RateLimitConfig) Resolve(method string, category Category, defaults Defaults) RateLimit {
	if c != nil {
		if byCategory, ok := c.LimitOverrides[strings.ToUpper(method)]; ok {
			if limit, ok := byCategory[category]; ok {
				return limit
			}
		}
	}
	if group, ok := defaults.Groups[c.GroupName()]; ok {
		if limit, ok := group[category]; ok {
			return limit
		}
	}
	return defaults.Global[category]
}
