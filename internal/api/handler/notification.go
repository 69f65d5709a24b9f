package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/api/models"
)

// ListNotifications returns the user's notifications, newest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	username := auth.ActorOf(c).Username
	list, err := h.engine.Notifications.ForUser(c.Request.Context(), username)
	if err != nil {
		respondError(c, err, "load notifications")
		return
	}
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": models.ToNotificationItems(list, h.now()),
		"unread":        unread,
	})
}

// UnreadNotifications returns the unread count for the navbar badge.
func (h *Handler) UnreadNotifications(c *gin.Context) {
	n, err := h.engine.Notifications.UnreadCount(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "count notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"unread":  n,
	})
}

// MarkNotificationRead marks one notification as read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Notifications.MarkRead(c.Request.Context(), id, auth.ActorOf(c).Username); err != nil {
		respondError(c, err, "mark notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// MarkAllNotificationsRead marks every notification of the user as read.
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.engine.Notifications.MarkAllRead(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "mark notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"marked":  n,
	})
}
