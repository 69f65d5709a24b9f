package webpush

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/database"
)

// ErrDisabled is returned when web push is not enabled.
var ErrDisabled = errors.New("webpush notifications are disabled")

// ErrNoSubscriptions is returned when a user has no push subscriptions.
var ErrNoSubscriptions = errors.New("no push subscriptions found")

// ErrAllSubscriptionsInvalid is returned when all subscriptions for a user are invalid (410/404).
type ErrAllSubscriptionsInvalid struct {
	Username string
}

func (e *ErrAllSubscriptionsInvalid) Error() string {
	return fmt.Sprintf("all push subscriptions for user %s are invalid or expired", e.Username)
}

// sendFunc matches webpush.SendNotificationWithContext.
type sendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// Client delivers web push notifications to the subscriptions stored in the side database.
type Client struct {
	config *config.WebPushConfig
	db     database.SubscriptionDB
	send   sendFunc
}

// Subscription is a browser push subscription as posted by the service worker.
type Subscription struct {
	ID       string `json:"id,omitempty"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NotificationPayload represents the payload sent to the client.
type NotificationPayload struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Data    map[string]any       `json:"data"`
	Actions []NotificationAction `json:"actions,omitempty"`
}

// NotificationAction represents an action button in the notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NewClient creates a new webpush client.
func NewClient(cfg *config.WebPushConfig, db database.SubscriptionDB) *Client {
	return &Client{
		config: cfg,
		db:     db,
		send:   webpush.SendNotificationWithContext,
	}
}

// GenerateVAPIDKeys generates a new VAPID key pair.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}

// Enabled reports whether web push is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// GetPublicKey returns the VAPID public key for client subscription.
func (c *Client) GetPublicKey() string {
	return c.config.PublicKey
}

// SubscriptionID derives a stable id from the endpoint.
func SubscriptionID(endpoint string) string {
	hash := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(hash[:])[:16]
}

// Subscribe stores a push subscription for a user.
func (c *Client) Subscribe(ctx context.Context, username string, sub *Subscription) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return fmt.Errorf("subscription endpoint and keys are required")
	}

	sub.ID = SubscriptionID(sub.Endpoint)
	if err := c.db.SavePushSubscription(ctx, database.PushSubscription{
		SubscriptionID: sub.ID,
		Username:       username,
		Endpoint:       sub.Endpoint,
		P256dh:         sub.Keys.P256dh,
		Auth:           sub.Keys.Auth,
		UserAgent:      sub.UserAgent,
	}); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	log.Info("Added push subscription", "id", sub.ID, "user", username)
	return nil
}

// Unsubscribe removes all push subscriptions of a user.
func (c *Client) Unsubscribe(ctx context.Context, username string) error {
	if err := c.db.DeleteUserPushSubscriptions(ctx, username); err != nil {
		return err
	}
	log.Info("Removed all push subscriptions", "user", username)
	return nil
}

// Subscriptions returns the stored subscriptions of a user.
func (c *Client) Subscriptions(ctx context.Context, username string) ([]database.PushSubscription, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return c.db.GetPushSubscriptions(ctx, username)
}

// UnsubscribeByEndpoint removes the subscription with the given endpoint.
func (c *Client) UnsubscribeByEndpoint(ctx context.Context, endpoint string) error {
	return c.db.DeletePushSubscription(ctx, SubscriptionID(endpoint))
}

// SendNotification sends a push notification to all subscriptions of a user.
func (c *Client) SendNotification(ctx context.Context, username string, payload *NotificationPayload) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	subs, err := c.db.GetPushSubscriptions(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w for user %s", ErrNoSubscriptions, username)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	var lastError error
	successCount := 0
	invalidCount := 0

	for _, sub := range subs {
		resp, err := c.send(ctx, payloadBytes, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      c.config.VAPIDEmail,
			VAPIDPublicKey:  c.config.PublicKey,
			VAPIDPrivateKey: c.config.PrivateKey,
			TTL:             30,
			RecordSize:      3000, // larger records break firefox on android
		})

		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}

		switch {
		case status == http.StatusGone || status == http.StatusNotFound:
			invalidCount++
			log.Warn("Removing expired push subscription", "id", sub.SubscriptionID, "user", username, "status", status)
			if derr := c.db.DeletePushSubscription(ctx, sub.SubscriptionID); derr != nil {
				log.Error("failed to remove expired push subscription", "error", derr)
			}
			lastError = fmt.Errorf("push subscription expired with status %d", status)
		case err != nil:
			log.Error("Failed to send push notification", "id", sub.SubscriptionID, "user", username, "error", err)
			lastError = err
		case status != 0 && (status < 200 || status >= 300):
			log.Warn("Push notification failed", "id", sub.SubscriptionID, "user", username, "status", status)
			lastError = fmt.Errorf("push notification failed with status %d", status)
		default:
			successCount++
		}
	}

	if invalidCount == len(subs) {
		return &ErrAllSubscriptionsInvalid{Username: username}
	}

	if successCount > 0 {
		log.Debug("Sent push notification", "user", username, "delivered", successCount, "total", len(subs))
		return nil
	}

	return fmt.Errorf("failed to send push notification to any subscription for user %s: %w", username, lastError)
}

// SendNotificationToAll sends a notification to every subscribed user.
func (c *Client) SendNotificationToAll(ctx context.Context, payload *NotificationPayload) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	users, err := c.db.GetPushSubscribers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return ErrNoSubscriptions
	}

	var lastError error
	successCount := 0
	for _, u := range users {
		if err := c.SendNotification(ctx, u, payload); err != nil {
			log.Error("Failed to send notification to user", "user", u, "error", err)
			lastError = err
			continue
		}
		successCount++
	}

	if successCount > 0 {
		log.Info("Sent push notification", "users", successCount, "total", len(users))
		return nil
	}
	return fmt.Errorf("failed to send push notification to any user: %w", lastError)
}

// NewPayload builds the payload for a club notification.
func NewPayload(title, body, kind, link string) *NotificationPayload {
	return &NotificationPayload{
		Title: title,
		Body:  body,
		Icon:  "/static/icons/icon-192x192.png",
		Badge: "/static/icons/icon-192x192.png",
		Data: map[string]any{
			"type":      kind,
			"url":       link,
			"timestamp": time.Now().Unix(),
		},
		Actions: []NotificationAction{
			{
				Action: "open_app",
				Title:  "Open",
			},
		},
	}
}

// ValidateConfig validates the webpush configuration.
func (c *Client) ValidateConfig() error {
	if !c.Enabled() {
		return nil
	}

	if c.config.VAPIDEmail == "" {
		return fmt.Errorf("vapid_email is required when webpush is enabled")
	}

	if c.config.PublicKey == "" || c.config.PrivateKey == "" {
		return fmt.Errorf("both public_key and private_key are required when webpush is enabled")
	}

	if _, err := base64.RawURLEncoding.DecodeString(c.config.PublicKey); err != nil {
		return fmt.Errorf("invalid public key format: %w", err)
	}

	if _, err := base64.RawURLEncoding.DecodeString(c.config.PrivateKey); err != nil {
		return fmt.Errorf("invalid private key format: %w", err)
	}

	return nil
}
