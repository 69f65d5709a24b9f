package models

import (
	"net/url"
	"strings"
	"time"

	"github.com/mergestat/timediff"
	"github.com/polaris-class/clubhouse/internal/board"
	"github.com/polaris-class/clubhouse/internal/chat"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// ImageRoute is the URL prefix post images are served under.
const ImageRoute = "/api/board/images/"

// ToUserInfo converts an actor for the /api/me response.
func ToUserInfo(a *models.Actor) UserInfo {
	clubs := a.Clubs
	if clubs == nil {
		clubs = []store.Membership{}
	}
	return UserInfo{
		Username:    a.Username,
		Name:        a.Name,
		Role:        a.Role,
		Email:       a.Email,
		GravatarURL: a.GravatarURL,
		Clubs:       clubs,
		IsTeacher:   a.IsTeacher(),
		IsLeader:    a.IsLeader(),
		Rooms:       chat.Rooms(a),
	}
}

// ago renders a stored datetime relative to now. Unparseable values yield "".
func ago(v string, now time.Time) string {
	t, ok := models.ParseDateTime(v, now.Location())
	if !ok {
		return ""
	}
	return timediff.TimeDiff(t, timediff.WithStartTime(now))
}

// ToPostItem converts a post.
func ToPostItem(p models.Post, now time.Time) PostItem {
	tags := lo.Compact(lo.Map(strings.Split(p.Tags, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))
	images := lo.Map(board.ImagePaths(p), func(rel string, _ int) string {
		return ImageRoute + (&url.URL{Path: rel}).EscapedPath()
	})
	return PostItem{
		Post:    p,
		TagList: lo.Ternary(tags == nil, []string{}, tags),
		Images:  lo.Ternary(images == nil, []string{}, images),
		Ago:     ago(p.CreatedDate, now),
	}
}

// ToPostItems converts a slice of posts.
func ToPostItems(posts []models.Post, now time.Time) []PostItem {
	result := make([]PostItem, len(posts))
	for i, p := range posts {
		result[i] = ToPostItem(p, now)
	}
	return result
}

// ToNotificationItems converts a slice of notifications.
func ToNotificationItems(items []models.Notification, now time.Time) []NotificationItem {
	result := make([]NotificationItem, len(items))
	for i, n := range items {
		result[i] = NotificationItem{
			Notification: n,
			Icon:         notification.Icon(n.Type),
			Ago:          ago(n.CreatedDate, now),
		}
	}
	return result
}
