package database

import (
	"context"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PushSubscription is a browser web push endpoint of a user.
type PushSubscription struct {
	gorm.Model
	SubscriptionID string `gorm:"uniqueIndex;not null"`
	Username       string `gorm:"not null;index"`
	Endpoint       string `gorm:"not null"`
	P256dh         string `gorm:"column:p256dh;not null"`
	Auth           string `gorm:"not null"`
	UserAgent      string
}

// SubscriptionDB defines the web push subscription operations.
type SubscriptionDB interface {
	SavePushSubscription(ctx context.Context, sub PushSubscription) error
	GetPushSubscriptions(ctx context.Context, username string) ([]PushSubscription, error)
	GetPushSubscribers(ctx context.Context) ([]string, error)
	DeletePushSubscription(ctx context.Context, subscriptionID string) error
	DeleteUserPushSubscriptions(ctx context.Context, username string) error
	CountPushSubscriptions(ctx context.Context) (int64, error)
}

// SavePushSubscription creates or refreshes a subscription keyed by its id.
func (c *Client) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "endpoint", "p256dh", "auth", "user_agent", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		log.Error("failed to save push subscription", "error", err)
		return err
	}
	return nil
}

// GetPushSubscriptions returns all subscriptions of a user.
func (c *Client) GetPushSubscriptions(ctx context.Context, username string) ([]PushSubscription, error) {
	var subs []PushSubscription
	if err := c.db.WithContext(ctx).Where("username = ?", username).Find(&subs).Error; err != nil {
		log.Error("failed to get push subscriptions", "error", err)
		return nil, err
	}
	return subs, nil
}

// GetPushSubscribers returns the usernames with at least one subscription.
func (c *Client) GetPushSubscribers(ctx context.Context) ([]string, error) {
	var users []string
	if err := c.db.WithContext(ctx).Model(&PushSubscription{}).Distinct().Pluck("username", &users).Error; err != nil {
		log.Error("failed to get push subscribers", "error", err)
		return nil, err
	}
	return users, nil
}

// DeletePushSubscription removes a subscription by id.
func (c *Client) DeletePushSubscription(ctx context.Context, subscriptionID string) error {
	if err := c.db.WithContext(ctx).Unscoped().Where("subscription_id = ?", subscriptionID).Delete(&PushSubscription{}).Error; err != nil {
		log.Error("failed to delete push subscription", "error", err)
		return err
	}
	return nil
}

// DeleteUserPushSubscriptions removes all subscriptions of a user.
func (c *Client) DeleteUserPushSubscriptions(ctx context.Context, username string) error {
	if err := c.db.WithContext(ctx).Unscoped().Where("username = ?", username).Delete(&PushSubscription{}).Error; err != nil {
		log.Error("failed to delete user push subscriptions", "error", err)
		return err
	}
	return nil
}

// CountPushSubscriptions returns the total number of subscriptions.
func (c *Client) CountPushSubscriptions(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&PushSubscription{}).Count(&n).Error; err != nil {
		log.Error("failed to count push subscriptions", "error", err)
		return 0, err
	}
	return n, nil
}
