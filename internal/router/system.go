package router

import "github.com/deppfellow/trackr/internal/middleware"

// registerSystemRoutes mounts the endpoints every silo answers.
func (r *routes) registerSystemRoutes() {
	system := r.e.Group("", r.mw.Silo.Limit(middleware.SiloAll))
	system.GET("/status", r.h.Health.CheckHealth)
	system.GET("/metrics", r.h.Metrics.Serve)
}
