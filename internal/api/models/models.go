// Package models holds the JSON shapes returned by the HTTP API where they differ
// from the stored rows.
package models

import (
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
)

// UserInfo is the signed-in user as seen by the client.
type UserInfo struct {
	Username    string             `json:"username"`
	Name        string             `json:"name"`
	Role        models.Role        `json:"role"`
	Email       string             `json:"email,omitempty"`
	GravatarURL string             `json:"gravatarUrl,omitempty"`
	Clubs       []store.Membership `json:"clubs"`
	IsTeacher   bool               `json:"isTeacher"`
	IsLeader    bool               `json:"isLeader"`
	// Rooms are the chat rooms the user may join.
	Rooms []string `json:"rooms"`
}

// PostItem is a board post with its tags and image URLs split out.
type PostItem struct {
	models.Post
	TagList []string `json:"tagList"`
	Images  []string `json:"images"`
	Ago     string   `json:"ago"`
}

// NotificationItem is a notification with its display icon.
type NotificationItem struct {
	models.Notification
	Icon string `json:"icon"`
	Ago  string `json:"ago"`
}
