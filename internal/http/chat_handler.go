package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-feed/internal/domain"
	"chat-feed/internal/history"
	"chat-feed/internal/service"
)

// ChatHandler expone historial, publicacion de mensajes y typing.
type ChatHandler struct {
	logger *zap.Logger
	chat   *service.ChatService
}

func NewChatHandler(logger *zap.Logger, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{logger: logger, chat: chat}
}

// ListMessages maneja GET /messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	size := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		size = n
	}

	page, err := h.chat.FetchPage(c.Request.Context(), domain.Cursor(c.Query("cursor")), size)
	if err != nil {
		h.writeError(c, err, "could not fetch messages")
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostMessage maneja POST /messages.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	viewer, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.chat.PostMessage(c.Request.Context(), viewer, req.Text)
	if err != nil {
		h.writeError(c, err, "could not post message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// SignalTyping maneja POST /typing.
func (h *ChatHandler) SignalTyping(c *gin.Context) {
	viewer, ok := currentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req struct {
		Typing *bool `json:"typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid typing request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var err error
	if req.Typing == nil || *req.Typing {
		_, err = h.chat.SignalTyping(c.Request.Context(), viewer)
	} else {
		_, err = h.chat.StopTyping(c.Request.Context(), viewer)
	}
	if err != nil {
		h.writeError(c, err, "could not update typing")
		return
	}
	c.Status(http.StatusNoContent)
}

// CurrentTypists maneja GET /typing.
func (h *ChatHandler) CurrentTypists(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"typists": h.chat.CurrentTypists()})
}

func (h *ChatHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrMalformedMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, history.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, slow down"})
	case errors.Is(err, history.ErrStoreUnavailable):
		h.logger.Warn("store unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		h.logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
