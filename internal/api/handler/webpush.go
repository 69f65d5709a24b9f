package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/notify/webpush"
)

// SubscribeRequest represents the request body for push notification subscription.
type SubscribeRequest struct {
	Subscription webpush.Subscription `json:"subscription"`
}

// WebPushHandler handles webpush-related API endpoints.
type WebPushHandler struct {
	webpush *webpush.Client
}

// NewWebPushHandler creates a new webpush API handler.
func NewWebPushHandler(webpushClient *webpush.Client) *WebPushHandler {
	return &WebPushHandler{
		webpush: webpushClient,
	}
}

func (h *WebPushHandler) disabled(c *gin.Context) bool {
	if h.webpush.Enabled() {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"error":   "webpush is not configured",
	})
	return true
}

// GetVAPIDKey returns the VAPID public key for client subscription.
func (h *WebPushHandler) GetVAPIDKey(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"publicKey": h.webpush.GetPublicKey(),
	})
}

// Subscribe stores the browser subscription of the signed-in user.
func (h *WebPushHandler) Subscribe(c *gin.Context) {
	if h.disabled(c) {
		return
	}

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid subscription data")
		return
	}
	sub := req.Subscription
	sub.UserAgent = c.GetHeader("User-Agent")

	if err := h.webpush.Subscribe(c.Request.Context(), auth.ActorOf(c).Username, &sub); err != nil {
		log.Error("Failed to subscribe", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "failed to subscribe user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "successfully subscribed to push notifications",
		"subscription_id": sub.ID,
	})
}

// Unsubscribe removes every subscription of the signed-in user.
func (h *WebPushHandler) Unsubscribe(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	if err := h.webpush.Unsubscribe(c.Request.Context(), auth.ActorOf(c).Username); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to unsubscribe user",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "successfully unsubscribed from push notifications",
	})
}

// UnsubscribeByEndpoint removes the subscription of one browser.
func (h *WebPushHandler) UnsubscribeByEndpoint(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	var request struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Endpoint == "" {
		badRequest(c, "endpoint is required")
		return
	}

	subs, err := h.webpush.Subscriptions(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "load subscriptions")
		return
	}
	id := webpush.SubscriptionID(request.Endpoint)
	owned := false
	for _, s := range subs {
		if s.SubscriptionID == id {
			owned = true
			break
		}
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "subscription not found",
		})
		return
	}

	if err := h.webpush.UnsubscribeByEndpoint(c.Request.Context(), request.Endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "failed to unsubscribe endpoint",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "successfully unsubscribed endpoint",
	})
}

// GetSubscriptionStatus reports whether the endpoint in the query belongs to the user.
func (h *WebPushHandler) GetSubscriptionStatus(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	username := auth.ActorOf(c).Username
	subs, err := h.webpush.Subscriptions(c.Request.Context(), username)
	if err != nil {
		respondError(c, err, "load subscriptions")
		return
	}

	subscribed := false
	if endpoint := c.Query("endpoint"); endpoint != "" {
		id := webpush.SubscriptionID(endpoint)
		for _, s := range subs {
			if s.SubscriptionID == id {
				subscribed = true
				break
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"subscribed": subscribed,
		"username":   username,
		"count":      len(subs),
	})
}

// TestNotification sends a test push notification to the signed-in user.
func (h *WebPushHandler) TestNotification(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	payload := webpush.NewPayload("테스트 알림", "푸시 알림이 정상적으로 동작합니다.", "info", "/")
	if err := h.webpush.SendNotification(c.Request.Context(), auth.ActorOf(c).Username, payload); err != nil {
		var invalidErr *webpush.ErrAllSubscriptionsInvalid
		switch {
		case errors.As(err, &invalidErr):
			c.JSON(http.StatusGone, gin.H{
				"success": false,
				"error":   "all push subscriptions are invalid or expired",
				"message": "Please re-enable push notifications",
			})
		case errors.Is(err, webpush.ErrNoSubscriptions):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		default:
			log.Error("Failed to send test notification", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "failed to send test notification",
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "test notification sent",
	})
}
