package database

import (
	"context"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// RecentSearch is a query a user ran.
type RecentSearch struct {
	gorm.Model
	Username string `gorm:"not null;index"`
	Query    string `gorm:"not null"`
	Types    string
}

// SearchDB defines the recent search operations.
type SearchDB interface {
	AddRecentSearch(ctx context.Context, search RecentSearch, keep int) error
	GetRecentSearches(ctx context.Context, username string, limit int) ([]RecentSearch, error)
	ClearRecentSearches(ctx context.Context, username string) error
}

// AddRecentSearch stores a search and trims the user's history to the newest keep entries.
// Repeating a query moves it to the top instead of duplicating it.
func (c *Client) AddRecentSearch(ctx context.Context, search RecentSearch, keep int) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("username = ? AND query = ?", search.Username, search.Query).Delete(&RecentSearch{}).Error; err != nil {
			log.Error("failed to remove duplicate search", "error", err)
			return err
		}
		if err := tx.Create(&search).Error; err != nil {
			log.Error("failed to create recent search", "error", err)
			return err
		}
		if keep <= 0 {
			return nil
		}

		var ids []uint
		if err := tx.Model(&RecentSearch{}).
			Where("username = ?", search.Username).
			Order("id DESC").
			Pluck("id", &ids).Error; err != nil {
			log.Error("failed to find stale searches", "error", err)
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		return tx.Unscoped().Delete(&RecentSearch{}, ids[keep:]).Error
	})
}

// GetRecentSearches returns the newest searches of a user.
func (c *Client) GetRecentSearches(ctx context.Context, username string, limit int) ([]RecentSearch, error) {
	var searches []RecentSearch
	if err := c.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id DESC").
		Limit(limit).
		Find(&searches).Error; err != nil {
		log.Error("failed to get recent searches", "error", err)
		return nil, err
	}
	return searches, nil
}

// ClearRecentSearches removes a user's search history.
func (c *Client) ClearRecentSearches(ctx context.Context, username string) error {
	if err := c.db.WithContext(ctx).Unscoped().Where("username = ?", username).Delete(&RecentSearch{}).Error; err != nil {
		log.Error("failed to clear recent searches", "error", err)
		return err
	}
	return nil
}
