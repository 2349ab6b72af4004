package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/events"
	"github.com/conclave-ai/conclave/internal/storage"
	"github.com/conclave-ai/conclave/internal/webfetch"
	"github.com/conclave-ai/conclave/pkg/logger"
	"github.com/conclave-ai/conclave/pkg/metrics"
)

// sendMessageRequest is the body of both conversation message endpoints.
type sendMessageRequest struct {
	Content    string `json:"content" binding:"required"`
	Credential string `json:"api_key,omitempty"`
}

// health returns a simple health check response.
// GET / - Returns service status information.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "conclave",
	})
}

// listConversations lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversation creates a new empty conversation under a fresh UUID.
// POST /api/conversations
func (s *Server) createConversation(c *gin.Context) {
	conversation, err := s.store.Create(uuid.New().String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversation gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func (s *Server) getConversation(c *gin.Context) {
	conversation, err := s.store.Get(c.Param("id"))
	if err != nil {
		s.conversationError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// deleteConversation removes a conversation.
// DELETE /api/conversations/:id
func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.store.Delete(c.Param("id")); err != nil {
		s.conversationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// sendMessage runs a full deliberation for a conversation turn and returns
// all stages at once. Use sendMessageStream for the SSE version.
// POST /api/conversations/:id/message
func (s *Server) sendMessage(c *gin.Context) {
	conversationID := c.Param("id")

	var request sendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := s.store.Get(conversationID)
	if err != nil {
		s.conversationError(c, err)
		return
	}

	if request.Credential == "" && s.cfg.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api key is not configured"})
		return
	}

	isFirstMessage := len(conversation.Messages) == 0

	if err := s.store.AddUserMessage(conversationID, request.Content); err != nil {
		s.conversationError(c, err)
		return
	}

	// The title does not block the deliberation.
	if isFirstMessage {
		go s.titleConversation(conversationID, request.Content, request.Credential)
	}

	result, err := s.orchestrator.Run(c.Request.Context(), council.Request{
		Content:    request.Content,
		Credential: request.Credential,
	}, events.Discard)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Council process failed: %v", err),
		})
		return
	}

	if err := s.store.AddAssistantMessage(conversationID, result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// sendMessageStream runs a deliberation for a conversation turn and streams
// progress events as each stage completes.
// POST /api/conversations/:id/message/stream
func (s *Server) sendMessageStream(c *gin.Context) {
	conversationID := c.Param("id")

	var request sendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := s.store.Get(conversationID)
	if err != nil {
		s.conversationError(c, err)
		return
	}

	if request.Credential == "" && s.cfg.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api key is not configured"})
		return
	}

	isFirstMessage := len(conversation.Messages) == 0

	if err := s.store.AddUserMessage(conversationID, request.Content); err != nil {
		s.conversationError(c, err)
		return
	}

	traceID := uuid.New().String()
	c.Header("X-Trace-Id", traceID)

	metrics.IncActiveStreams()
	defer metrics.DecActiveStreams()

	sink := newStreamSink(c)
	result, err := s.orchestrator.Run(c.Request.Context(), council.Request{
		Content:       request.Content,
		Credential:    request.Credential,
		GenerateTitle: isFirstMessage,
		TraceID:       traceID,
	}, sink)
	if err != nil {
		// The error event is already on the wire.
		return
	}

	// The stream is complete; persistence failures from here on are
	// logged rather than sent to the client.
	if isFirstMessage && result.Title != "" {
		if err := s.store.UpdateTitle(conversationID, result.Title); err != nil {
			s.log.Warn(c.Request.Context(), "failed to update conversation title",
				logger.String("conversation_id", conversationID),
				logger.Error(err))
		}
	}
	if err := s.store.AddAssistantMessage(conversationID, result); err != nil {
		s.log.Error(c.Request.Context(), "failed to save assistant message",
			logger.String("conversation_id", conversationID),
			logger.Error(err))
	}
}

// titleConversation generates and persists a conversation title.
func (s *Server) titleConversation(conversationID, content, credential string) {
	ctx := context.Background()

	title := s.orchestrator.GenerateTitle(ctx, content, credential)
	if err := s.store.UpdateTitle(conversationID, title); err != nil {
		s.log.Warn(ctx, "failed to update conversation title",
			logger.String("conversation_id", conversationID),
			logger.Error(err))
	}
}

// conversationError maps storage errors onto HTTP responses.
func (s *Server) conversationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, storage.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Storage failure: %v", err),
		})
	}
}

// fetchURL fetches and extracts readable content from a given URL.
// POST /api/fetch-url - Body: {"url": "https://..."}
func (s *Server) fetchURL(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	page, err := s.fetcher.Fetch(c.Request.Context(), request.URL)
	if err != nil {
		if errors.Is(err, webfetch.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid URL: %v", err),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"title":   page.Title,
		"content": page.Content,
	})
}
