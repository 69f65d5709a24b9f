package models

import (
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestToUserInfo(t *testing.T) {
	info := ToUserInfo(&models.Actor{
		Username: "kim",
		Name:     "김철수",
		Role:     models.RoleMember,
		Clubs:    []store.Membership{{Club: "코딩", Role: "president"}},
	})
	assert.False(t, info.IsTeacher)
	assert.True(t, info.IsLeader)
	assert.Equal(t, []string{models.AllClubs, "코딩"}, info.Rooms)

	empty := ToUserInfo(&models.Actor{Username: "lee", Role: models.RoleMember})
	assert.NotNil(t, empty.Clubs)
	assert.False(t, empty.IsLeader)
}

func TestToPostItem(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	item := ToPostItem(models.Post{
		ID:          1,
		Tags:        "go, csv ,",
		ImagePath:   "uploads/board/1_a.jpg,uploads/board/1_b.jpg",
		CreatedDate: "2025-03-10 10:00:00",
	}, now)

	assert.Equal(t, []string{"go", "csv"}, item.TagList)
	assert.Equal(t, []string{
		"/api/board/images/uploads/board/1_a.jpg",
		"/api/board/images/uploads/board/1_b.jpg",
	}, item.Images)
	assert.Equal(t, "2 hours ago", item.Ago)

	bare := ToPostItem(models.Post{CreatedDate: "garbage"}, now)
	assert.Empty(t, bare.TagList)
	assert.NotNil(t, bare.Images)
	assert.Empty(t, bare.Ago)
}

func TestToNotificationItems(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	items := ToNotificationItems([]models.Notification{
		{ID: 1, Type: "badge", CreatedDate: "2025-03-09 12:00:00"},
		{ID: 2, Type: "unknown"},
	}, now)

	assert.Len(t, items, 2)
	assert.Equal(t, "🏆", items[0].Icon)
	assert.Equal(t, "a day ago", items[0].Ago)
	assert.Equal(t, "ℹ️", items[1].Icon)
}
