package notification

import (
	"context"
	"errors"
	"time"

	"github.com/polaris-class/clubhouse/internal/notify/email"
	"github.com/polaris-class/clubhouse/internal/notify/ntfy"
	"github.com/polaris-class/clubhouse/internal/notify/webpush"
)

// EmailChannel mails direct notifications to users with an email address.
// Broadcasts are not mailed.
type EmailChannel struct {
	svc *email.NotificationService
}

// NewEmailChannel returns nil when email is disabled.
func NewEmailChannel(svc *email.NotificationService) Channel {
	if !svc.Enabled() {
		return nil
	}
	return &EmailChannel{svc: svc}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(_ context.Context, d Delivery) error {
	if d.Broadcast() || d.Email == "" {
		return nil
	}
	return c.svc.SendNotification(email.Notification{
		To:      d.Email,
		Name:    d.Name,
		Icon:    Icon(d.Type),
		Title:   d.Title,
		Message: d.Message,
		Link:    d.Link,
		Sent:    time.Now(),
	})
}

// NtfyChannel publishes every notification to the ntfy topic.
type NtfyChannel struct {
	client *ntfy.Client
}

// NewNtfyChannel wraps a ntfy client. A nil client yields a nil channel.
func NewNtfyChannel(client *ntfy.Client) Channel {
	if client == nil {
		return nil
	}
	return &NtfyChannel{client: client}
}

func (c *NtfyChannel) Name() string { return "ntfy" }

func (c *NtfyChannel) Deliver(ctx context.Context, d Delivery) error {
	return c.client.SendNotification(ctx, Icon(d.Type), d.Title, d.Message, d.Type, d.Username, d.Link)
}

// WebPushChannel pushes notifications to the recipients' browsers.
type WebPushChannel struct {
	client *webpush.Client
}

// NewWebPushChannel returns nil when web push is disabled.
func NewWebPushChannel(client *webpush.Client) Channel {
	if !client.Enabled() {
		return nil
	}
	return &WebPushChannel{client: client}
}

func (c *WebPushChannel) Name() string { return "webpush" }

func (c *WebPushChannel) Deliver(ctx context.Context, d Delivery) error {
	payload := webpush.NewPayload(Icon(d.Type)+" "+d.Title, d.Message, d.Type, d.Link)

	var err error
	if d.Broadcast() {
		err = c.client.SendNotificationToAll(ctx, payload)
	} else {
		err = c.client.SendNotification(ctx, d.Username, payload)
	}
	if errors.Is(err, webpush.ErrNoSubscriptions) {
		return nil
	}
	return err
}
