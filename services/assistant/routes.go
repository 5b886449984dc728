// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all assistant routes with the router.
//
// Description:
//
//	Registers all /v1/assistant/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/assistant/route - Classify text into a handling route
//	POST /v1/assistant/recall - Retrieve relevant memory snippets
//	POST /v1/assistant/calibrate - Fit route thresholds from labeled samples
//	GET  /v1/assistant/config - Export the current route set
//	GET  /v1/assistant/health - Health check
//
// Example:
//
//	service, _ := assistant.NewService(ctx, assistant.DefaultServiceConfig())
//	handlers := assistant.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	assistant.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	assistant := rg.Group("/assistant")
	{
		assistant.POST("/route", handlers.HandleRoute)
		assistant.POST("/recall", handlers.HandleRecall)
		assistant.POST("/calibrate", handlers.HandleCalibrate)

		assistant.GET("/config", handlers.HandleConfig)
		assistant.GET("/health", handlers.HandleHealth)
	}
}
