package main

import (
	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", httpapi.Healthz)
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	d.handlers.Register(r)
}
