package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/server"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler answers /status with the state of the database and Redis.
type HealthHandler struct {
	Handler
	checks map[string]func(ctx context.Context) error
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	checks := map[string]func(ctx context.Context) error{}
	if s.DB != nil {
		checks["database"] = func(ctx context.Context) error { return s.DB.Pool.Ping(ctx) }
	}
	if s.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return s.Redis.Ping(ctx).Err() }
	}
	return &HealthHandler{Handler: NewHandler(s), checks: checks}
}

type checkResult struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// CheckHealth returns 200 when every dependency answers and 503 otherwise.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()
	logger := middleware.GetLogger(c).With().Str("operation", "health_check").Logger()

	results := make(map[string]checkResult, len(h.checks))
	healthy := true

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		checkStart := time.Now()
		err := check(ctx)
		cancel()

		result := checkResult{Status: "healthy", ResponseTime: time.Since(checkStart).String()}
		if err != nil {
			healthy = false
			result.Status = "unhealthy"
			result.Error = err.Error()

			logger.Error().Err(err).Str("check", name).Msg("health check failed")
			h.recordFailure(name, err)
		}
		results[name] = result
	}

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"silo_mode":   h.server.Config.Primary.SiloModeOrDefault(),
		"checks":      results,
	}

	if !healthy {
		response["status"] = "unhealthy"
		logger.Warn().Dur("total_duration", time.Since(start)).Msg("health check failed")
		return c.JSON(http.StatusServiceUnavailable, response)
	}

	logger.Debug().Dur("total_duration", time.Since(start)).Msg("health check passed")
	return c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) recordFailure(check string, err error) {
	if h.server.LoggerService == nil || h.server.LoggerService.GetApplication() == nil {
		return
	}
	h.server.LoggerService.GetApplication().RecordCustomEvent("HealthCheckError", map[string]interface{}{
		"check_type":    check,
		"operation":     "health_check",
		"error_message": err.Error(),
	})
}

// MetricsHandler exposes the Prometheus collectors.
type MetricsHandler struct {
	Handler
	serve echo.HandlerFunc
}

func NewMetricsHandler(s *server.Server) *MetricsHandler {
	return &MetricsHandler{Handler: NewHandler(s), serve: echo.WrapHandler(s.Metrics.Handler())}
}

func (h *MetricsHandler) Serve(c echo.Context) error {
	return h.serve(c)
}
