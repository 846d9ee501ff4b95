package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/deppfellow/trackr/internal/errs"
)

// SiloMode names the part of the API a route belongs to, and the part a
// process serves.
type SiloMode string

const (
	SiloMonolith SiloMode = "monolith"
	SiloControl  SiloMode = "control"
	SiloRegion   SiloMode = "region"
	// SiloAll tags routes served in every mode.
	SiloAll SiloMode = "all"
)

// Serves reports whether a process running in mode answers a route tagged
// route.
func (mode SiloMode) Serves(route SiloMode) bool {
	return mode == SiloMonolith || route == SiloAll || mode == route
}

type SiloMiddleware struct {
	mode SiloMode
}

func NewSiloMiddleware(mode string) *SiloMiddleware {
	if mode == "" {
		mode = string(SiloMonolith)
	}
	return &SiloMiddleware{mode: SiloMode(mode)}
}

func (s *SiloMiddleware) Mode() SiloMode {
	return s.mode
}

// Limit answers 404 SILO_UNAVAILABLE for routes this process does not serve.
func (s *SiloMiddleware) Limit(route SiloMode) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if s.mode.Serves(route) {
			return next
		}
		return func(c echo.Context) error {
			code := "SILO_UNAVAILABLE"
			return errs.NewNotFoundError("This endpoint is not available in "+string(s.mode)+" mode", true, &code)
		}
	}
}
