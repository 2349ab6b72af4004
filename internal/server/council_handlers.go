package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/pkg/logger"
	"github.com/conclave-ai/conclave/pkg/metrics"
)

// processCouncil runs a full deliberation and streams progress events.
// POST /api/council/process - Body: {"content": "...", "api_key": "...",
// "council_models": [...], "chairman_model": "...", "generate_title": bool}
func (s *Server) processCouncil(c *gin.Context) {
	var request council.Request
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Configuration problems surface as a 400 before the stream opens.
	if problems := s.validateCouncilRequest(&request); problems != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problems})
		return
	}

	request.TraceID = uuid.New().String()
	c.Header("X-Trace-Id", request.TraceID)

	metrics.IncActiveStreams()
	defer metrics.DecActiveStreams()

	sink := newStreamSink(c)
	if _, err := s.orchestrator.Run(c.Request.Context(), request, sink); err != nil {
		// The error event is already on the wire.
		s.log.Warn(c.Request.Context(), "deliberation aborted",
			logger.String("trace_id", request.TraceID),
			logger.Error(err))
	}
}

// validateCouncilRequest resolves per-request overrides against the
// configured defaults and reports every problem at once, joined by "; ".
func (s *Server) validateCouncilRequest(request *council.Request) string {
	var problems []string

	if request.Credential == "" && s.cfg.APIKey == "" {
		problems = append(problems, "api key is not configured")
	}

	models := request.CouncilModels
	if len(models) == 0 {
		models = s.cfg.CouncilModels
	}
	distinct := make(map[string]struct{}, len(models))
	for _, model := range models {
		distinct[model] = struct{}{}
	}
	if len(distinct) < 2 {
		problems = append(problems, "council requires at least 2 distinct models")
	}
	if len(models) > council.MaxCouncilSize {
		problems = append(problems, fmt.Sprintf("council size exceeds the maximum of %d", council.MaxCouncilSize))
	}

	chairman := request.ChairmanModel
	if chairman == "" {
		chairman = s.cfg.ChairmanModel
	}
	if chairman == "" {
		problems = append(problems, "chairman model is not configured")
	}

	return strings.Join(problems, "; ")
}

// generateTitle produces a short title for a piece of content.
// POST /api/council/generate-title - Body: {"content": "..."}
func (s *Server) generateTitle(c *gin.Context) {
	var request struct {
		Content    string `json:"content" binding:"required"`
		Credential string `json:"api_key,omitempty"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}
	if request.Credential == "" && s.cfg.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api key is not configured"})
		return
	}

	title := s.orchestrator.GenerateTitle(c.Request.Context(), request.Content, request.Credential)

	c.JSON(http.StatusOK, gin.H{"title": title})
}

// councilStatus reports the latest recorded state of a deliberation.
// GET /api/council/status/:trace_id
func (s *Server) councilStatus(c *gin.Context) {
	entry, ok := s.statuses.Get(c.Param("trace_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown trace id"})
		return
	}

	c.JSON(http.StatusOK, entry)
}
