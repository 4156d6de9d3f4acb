// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the component endpoints on rg (typically /v1).
//
// Endpoints:
//
//	GET  /v1/health
//	GET  /v1/components/:name
//	POST /v1/components/:name
//	PUT  /v1/components/:name/record_empty
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/health", handlers.HandleHealth)

	components := rg.Group("/components")
	{
		components.GET("/:name", handlers.HandleGetComponent)
		components.POST("/:name", handlers.HandleSetComponent)
		components.PUT("/:name/record_empty", handlers.HandleSetRecordEmpty)
	}
}

// NewRouter builds the full server: recovery, tracing, the /v1 routes and,
// when metrics is not nil, GET /metrics.
func NewRouter(service string, handlers *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(service))

	RegisterRoutes(router.Group("/v1"), handlers)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
