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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAssist/services/assistant/recall"
	"github.com/AleutianAI/AleutianAssist/services/assistant/routing"
)

// =============================================================================
// HTTP Handlers
// =============================================================================

// Handlers exposes the service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set for a service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RouteRequest is the POST /v1/assistant/route payload.
type RouteRequest struct {
	Text           string             `json:"text" binding:"required"`
	Allowed        []string           `json:"allowed,omitempty"`
	Boosts         map[string]float64 `json:"boosts,omitempty"`
	AlphaOverrides map[string]float64 `json:"alphaOverrides,omitempty"`
	TopK           int                `json:"topK,omitempty"`
	MinGap         *float64           `json:"minGap,omitempty"`
}

// RouteResponse carries the decision; null when no route qualifies.
type RouteResponse struct {
	Decision *routing.Decision `json:"decision"`
}

// RecallRequest is the POST /v1/assistant/recall payload.
type RecallRequest struct {
	Query            string `json:"query" binding:"required"`
	ChatID           string `json:"chatId,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	MaxInjectedChars int    `json:"maxInjectedChars,omitempty"`
}

// RecallResponse carries the ranked snippets, best first.
type RecallResponse struct {
	Results []recall.Result `json:"results"`
}

// CalibrateRequest is the POST /v1/assistant/calibrate payload.
type CalibrateRequest struct {
	Samples []routing.LabeledSample `json:"samples" binding:"required"`

	// MineNegatives also harvests misrouting counter-examples from the
	// same dataset before fitting thresholds.
	MineNegatives bool `json:"mineNegatives,omitempty"`

	// Persist writes the fitted config back to disk on success.
	Persist bool `json:"persist,omitempty"`
}

// CalibrateResponse reports the calibration outcome.
type CalibrateResponse struct {
	Report         *routing.CalibrationReport `json:"report"`
	NegativesAdded int                        `json:"negativesAdded"`
}

// HandleRoute handles POST /v1/assistant/route.
//
// Description:
//
//	Classifies the text against the allowed route set. A null decision is a
//	normal outcome (200 with decision: null), not an error — the caller
//	falls through to its default conversational handling.
//
// Response:
//
//	200 OK: RouteResponse
//	400 Bad Request: Malformed payload
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleRoute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRoute")

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	decision := h.service.Router.Route(c.Request.Context(), req.Text, routing.Options{
		Allowed:        req.Allowed,
		Boosts:         req.Boosts,
		AlphaOverrides: req.AlphaOverrides,
		TopK:           req.TopK,
		MinGap:         req.MinGap,
	})
	if decision == nil {
		logger.Debug("no route qualified")
	}
	c.JSON(http.StatusOK, RouteResponse{Decision: decision})
}

// HandleRecall handles POST /v1/assistant/recall.
//
// Response:
//
//	200 OK: RecallResponse (results may be empty)
//	400 Bad Request: Malformed payload
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleRecall(c *gin.Context) {
	var req RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	results := h.service.Recall.Search(c.Request.Context(), req.Query, recall.SearchOptions{
		Limit:            req.Limit,
		ChatID:           req.ChatID,
		MaxInjectedChars: req.MaxInjectedChars,
	})
	if results == nil {
		results = []recall.Result{}
	}
	c.JSON(http.StatusOK, RecallResponse{Results: results})
}

// HandleCalibrate handles POST /v1/assistant/calibrate.
//
// Description:
//
//	Runs the offline threshold fit (optionally preceded by negative mining)
//	against the submitted labeled samples. Expected to be called by an
//	operator or a scheduled job, never on the hot path.
//
// Response:
//
//	200 OK: CalibrateResponse
//	400 Bad Request: Malformed payload
//	422 Unprocessable Entity: Fewer samples than the calibration minimum
//	500 Internal Server Error: Config persistence failure
//
// Thread Safety: Calibration runs must not overlap; the caller serializes.
func (h *Handlers) HandleCalibrate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCalibrate")

	var req CalibrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()
	negativesAdded := 0
	if req.MineNegatives {
		negativesAdded = h.service.Router.MineNegatives(ctx, req.Samples, 0)
	}

	report, err := h.service.Router.Calibrate(ctx, req.Samples)
	if errors.Is(err, routing.ErrInsufficientSamples) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "INSUFFICIENT_SAMPLES",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "CALIBRATION_FAILED",
		})
		return
	}

	if req.Persist {
		if err := h.service.SaveConfig(); err != nil {
			logger.Error("persisting calibrated config failed",
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "calibration succeeded but persisting the config failed: " + err.Error(),
				Code:  "PERSIST_FAILED",
			})
			return
		}
	}

	c.JSON(http.StatusOK, CalibrateResponse{
		Report:         report,
		NegativesAdded: negativesAdded,
	})
}

// HandleConfig handles GET /v1/assistant/config — the current in-memory
// route set, thresholds included.
func (h *Handlers) HandleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Router.ExportConfig())
}

// HandleHealth handles GET /v1/assistant/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"routes": h.service.Router.RouteNames(),
	})
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
