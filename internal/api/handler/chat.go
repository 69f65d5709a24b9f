package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/chat"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// ChatRooms lists the rooms the user may join.
func (h *Handler) ChatRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rooms":   chat.Rooms(auth.ActorOf(c)),
	})
}

// ChatHistory returns the latest messages of a room.
func (h *Handler) ChatHistory(c *gin.Context) {
	msgs, err := h.engine.Chat.History(c.Request.Context(), auth.ActorOf(c), c.Param("club"), intQuery(c, "limit", chat.DefaultHistory, 500))
	if err != nil {
		respondError(c, err, "load chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"messages": lo.Ternary(msgs == nil, []models.ChatMessage{}, msgs),
	})
}

// SendChat posts a message to a room.
func (h *Handler) SendChat(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid message")
		return
	}
	msg, err := h.engine.Chat.Send(c.Request.Context(), auth.ActorOf(c), c.Param("club"), req.Message)
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": msg,
	})
}

// DeleteChat hides a message.
func (h *Handler) DeleteChat(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Chat.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
