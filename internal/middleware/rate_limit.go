package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
	"github.com/deppfellow/trackr/internal/lib/metrics"
	"github.com/deppfellow/trackr/internal/lib/ratelimit"
	"github.com/deppfellow/trackr/internal/server"
)

const (
	HeaderRateLimitLimit               = "X-Trackr-Rate-Limit-Limit"
	HeaderRateLimitRemaining           = "X-Trackr-Rate-Limit-Remaining"
	HeaderRateLimitReset               = "X-Trackr-Rate-Limit-Reset"
	HeaderRateLimitConcurrentLimit     = "X-Trackr-Rate-Limit-ConcurrentLimit"
	HeaderRateLimitConcurrentRemaining = "X-Trackr-Rate-Limit-ConcurrentRemaining"
)

type RateLimitMiddleware struct {
	server   *server.Server
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	enabled  bool
	failOpen bool
	now      func() time.Time
}

func NewRateLimitMiddleware(s *server.Server, limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server:   s,
		limiter:  limiter,
		metrics:  s.Metrics,
		enabled:  s.Config.RateLimit.Enabled,
		failOpen: s.Config.RateLimit.FailOpen,
		now:      time.Now,
	}
}

// category charges users per user and API keys to the key's organization.
// Everyone else is charged to the client ip, whatever the path names.
func category(c echo.Context) (ratelimit.Category, string) {
	if userID := GetUserID(c); userID != "" {
		return ratelimit.CategoryUser, userID
	}
	if key := GetAPIKey(c); key != nil {
		return ratelimit.CategoryOrganization, strconv.FormatInt(key.OrganizationID, 10)
	}
	return ratelimit.CategoryIP, c.RealIP()
}

// Limit enforces cfg on the route. A nil cfg uses the configured defaults.
func (r *RateLimitMiddleware) Limit(cfg *ratelimit.RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !r.enabled {
			return next
		}
		return func(c echo.Context) error {
			cat, id := category(c)
			req := ratelimit.Request{
				Config:   cfg,
				Category: cat,
				ID:       id,
				Method:   c.Request().Method,
				Path:     c.Path(),
			}

			result, release, err := r.limiter.Check(c.Request().Context(), req)
			if err != nil {
				if !r.failOpen {
					return err
				}
				GetLogger(c).Warn().Err(err).Msg("rate limiter unavailable, letting request through")
				return next(c)
			}
			defer func() {
				if err := release(); err != nil {
					GetLogger(c).Warn().Err(err).Msg("failed to release rate limit slot")
				}
			}()

			writeRateLimitHeaders(c, result)
			if result.Exceeded {
				r.RecordRateLimitHit(c.Path(), result)
				return r.exceeded(result)
			}
			return next(c)
		}
	}
}

func writeRateLimitHeaders(c echo.Context, result *ratelimit.Result) {
	h := c.Response().Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(result.Reset, 10))
	h.Set(HeaderRateLimitConcurrentLimit, strconv.Itoa(result.ConcurrentLimit))
	h.Set(HeaderRateLimitConcurrentRemaining, strconv.Itoa(result.ConcurrentRemaining))
}

func (r *RateLimitMiddleware) exceeded(result *ratelimit.Result) error {
	if result.Kind == ratelimit.KindConcurrent {
		return errs.NewTooManyRequestsError(
			fmt.Sprintf("You are attempting to go above the allowed concurrency for this endpoint. Concurrency limit is %d",
				result.ConcurrentLimit),
			"1")
	}

	retryAfter := max(result.Reset-r.now().Unix(), 1)
	return errs.NewTooManyRequestsError(
		fmt.Sprintf("You are attempting to use this endpoint too frequently. Limit is %d requests in %d seconds",
			result.Limit, result.Window),
		strconv.FormatInt(retryAfter, 10))
}

// RecordRateLimitHit counts a rejection in Prometheus and, when New Relic is
// configured, as a RateLimitHit custom event.
func (r *RateLimitMiddleware) RecordRateLimitHit(endpoint string, result *ratelimit.Result) {
	r.metrics.RateLimitHits.WithLabelValues(result.Group, string(result.Category), string(result.Kind)).Inc()

	if r.server.LoggerService != nil && r.server.LoggerService.GetApplication() != nil {
		r.server.LoggerService.GetApplication().RecordCustomEvent("RateLimitHit", map[string]interface{}{
			"endpoint": endpoint,
			"group":    result.Group,
			"category": string(result.Category),
			"kind":     string(result.Kind),
		})
	}
}
